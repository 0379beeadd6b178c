package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/purchase_confirm/internal/purchase"
)

// PurchaseMiddleware holds the per-route guards of the purchase endpoints.
type PurchaseMiddleware struct {
	ContactLimit fiber.Handler
	ListAuth     fiber.Handler
}

// RegisterPurchaseRoutes wires purchase token endpoints.
func RegisterPurchaseRoutes(r fiber.Router, h *purchase.Handler, mw PurchaseMiddleware) {
	group := r.Group("/purchases")
	group.Post("/", h.Issue)
	group.Get("/pending", withGuard(mw.ListAuth, h.ListPending)...)
	group.Get("/confirmed", withGuard(mw.ListAuth, h.ListConfirmed)...)
	group.Post("/:token/contact", withGuard(mw.ContactLimit, h.AttachContact)...)
	group.Get("/:token/confirm", h.Confirm)
}

func withGuard(guard, h fiber.Handler) []fiber.Handler {
	if guard == nil {
		return []fiber.Handler{h}
	}
	return []fiber.Handler{guard, h}
}
