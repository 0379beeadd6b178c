package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/purchase_confirm/internal/config"
	"github.com/congo-pay/purchase_confirm/internal/purchase"
	"github.com/congo-pay/purchase_confirm/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app       *fiber.App
	cfg       config.Config
	purchases *purchase.Service
	logger    *slog.Logger
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
// db and cache may be nil.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		DisableStartupMessage: !cfg.IsDev(),
	})

	svc, err := routes.Setup(app, routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger})
	if err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, purchases: svc, logger: logger}, nil
}

// RunJanitor purges expired tokens every PURGE_INTERVAL until ctx is done.
func (s *Server) RunJanitor(ctx context.Context) {
	s.logger.Debug("token janitor started", slog.Duration("interval", s.cfg.Tokens.PurgeInterval))
	s.purchases.Run(ctx, s.cfg.Tokens.PurgeInterval)
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
