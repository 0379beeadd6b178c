package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/purchase_confirm/internal/audit"
	"github.com/congo-pay/purchase_confirm/internal/config"
	"github.com/congo-pay/purchase_confirm/internal/logging"
	"github.com/congo-pay/purchase_confirm/internal/middleware"
	"github.com/congo-pay/purchase_confirm/internal/notification"
	"github.com/congo-pay/purchase_confirm/internal/purchase"
	"github.com/congo-pay/purchase_confirm/internal/tokens"
	"github.com/congo-pay/purchase_confirm/internal/tokenstore"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Notifier overrides the gateway chosen from configuration.
	Notifier notification.Notifier
	// Now overrides time.Now for the codec, the stores and the service.
	Now func() time.Time
	// Quiet disables the plain text access log.
	Quiet bool
}

// Setup configures middlewares and all application routes. It returns the
// purchase service so the caller can run its janitor.
func Setup(app *fiber.App, d Deps) (*purchase.Service, error) {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if !d.Quiet {
		// Plain text access log: [HH:MM:SS] 200 -  145ms METHOD /route/pattern
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${route}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	svc, err := newPurchaseService(d)
	if err != nil {
		return nil, err
	}

	// Health
	RegisterHealthRoutes(app, d, svc)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  d.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterPurchaseRoutes(api, purchase.NewHandler(svc), PurchaseMiddleware{
		ContactLimit: middleware.ContactRateLimit(d.Cache, d.Cfg.Notify.ContactRateLimit, d.Logger),
		ListAuth:     middleware.APIKeyAuth(d.Cfg.Tokens.ListAPIKey),
	})

	return svc, nil
}

func newPurchaseService(d Deps) (*purchase.Service, error) {
	codec, err := tokens.NewCodec(d.Cfg.Tokens.Secret, tokens.WithClock(d.Now))
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	pending := tokenstore.New[string, purchase.PendingEntry](
		d.Cfg.Tokens.PendingTTL,
		d.Cfg.Tokens.PendingCapacity,
		tokenstore.WithClock[string, purchase.PendingEntry](d.Now),
		tokenstore.WithEvictCallback(func(token string, _ purchase.PendingEntry) {
			d.Logger.Warn("pending store full, evicted token", slog.String("token", tokens.Fingerprint(token)))
		}),
	)
	confirmed := tokenstore.New[string, purchase.ConfirmedEntry](
		d.Cfg.Tokens.ConfirmedTTL,
		d.Cfg.Tokens.ConfirmedCapacity,
		tokenstore.WithClock[string, purchase.ConfirmedEntry](d.Now),
		tokenstore.WithEvictCallback(func(token string, _ purchase.ConfirmedEntry) {
			d.Logger.Warn("confirmed store full, evicted token", slog.String("token", tokens.Fingerprint(token)))
		}),
	)

	notifier := d.Notifier
	if notifier == nil {
		notifier, err = newNotifier(d.Cfg.Notify, d.Logger)
		if err != nil {
			return nil, err
		}
	}

	var recorder audit.Recorder
	if d.DB != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		recorder, err = audit.NewPostgresRecorder(ctx, d.DB)
		if err != nil {
			return nil, err
		}
	} else {
		recorder = audit.NewInMemory()
	}

	return purchase.NewService(purchase.Settings{
		PublicBaseURL:  d.Cfg.Notify.PublicBaseURL,
		NotifyTimeout:  d.Cfg.Notify.Timeout,
		VerifyOnLookup: d.Cfg.Tokens.VerifyOnLookup,
		AuditTimeout:   d.Cfg.AuditTimeout,
	}, purchase.Deps{
		Codec:     codec,
		Pending:   pending,
		Confirmed: confirmed,
		Notifier:  notifier,
		Recorder:  recorder,
		Logger:    d.Logger,
		Now:       d.Now,
	})
}

func newNotifier(cfg config.NotifyConfig, logger *slog.Logger) (notification.Notifier, error) {
	if !cfg.PostmarkEnabled() {
		logger.Warn("postmark credentials missing, confirmation emails are only logged")
		return notification.NewLoggerNotifier(logger), nil
	}
	n, err := notification.NewPostmarkNotifier(notification.PostmarkConfig{
		ServerToken:  cfg.PostmarkServerToken,
		AccountToken: cfg.PostmarkAccountToken,
		SenderEmail:  cfg.SenderEmail,
		SupportEmail: cfg.SupportEmail,
	})
	if err != nil {
		return nil, fmt.Errorf("postmark notifier: %w", err)
	}
	return n, nil
}
