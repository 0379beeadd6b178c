package purchase

import (
	"errors"
	"net/http"

	"github.com/a-h/templ"
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/purchase_confirm/internal/tokens"
	"github.com/congo-pay/purchase_confirm/internal/views"
)

// ConfirmedTokenHeader carries the re-signed token on a successful confirmation.
const ConfirmedTokenHeader = "X-Confirmed-Token"

// Handler exposes purchase token endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a purchase handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Issue creates a pending token for a purchase request from the card network.
func (h *Handler) Issue(c *fiber.Ctx) error {
	var req IssueRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.Issue(c.UserContext(), IssueInput{
		CardCode:         req.CardCode,
		HolderName:       req.HolderName,
		Expiry:           req.Expiry,
		VerificationCode: req.VerificationCode,
		Amount:           req.Amount,
		Installments:     req.Installments,
	})
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusCreated).JSON(IssueResponse{Token: res.Token, ExpiresAt: res.ExpiresAt.UTC()})
}

// ListPending returns every token awaiting confirmation.
func (h *Handler) ListPending(c *fiber.Ctx) error {
	items := h.service.ListPending(c.UserContext())
	out := make([]TokenResponse, 0, len(items))
	for _, item := range items {
		out = append(out, pendingResponse(item))
	}
	return c.Status(http.StatusOK).JSON(out)
}

// ListConfirmed returns every confirmed token.
func (h *Handler) ListConfirmed(c *fiber.Ctx) error {
	items := h.service.ListConfirmed(c.UserContext())
	out := make([]TokenResponse, 0, len(items))
	for _, item := range items {
		out = append(out, confirmedResponse(item))
	}
	return c.Status(http.StatusOK).JSON(out)
}

// AttachContact stores the cardholder's email and sends the confirmation link.
func (h *Handler) AttachContact(c *fiber.Ctx) error {
	var req ContactRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	err := h.service.AttachContact(c.UserContext(), c.Params("token"), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case isNotFound(err):
			return fiber.NewError(http.StatusNotFound, ErrNotFound.Error())
		case errors.Is(err, ErrNotificationFailed):
			return fiber.NewError(http.StatusBadGateway, ErrNotificationFailed.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "ok", "message": "contact registered"})
}

// Confirm is the target of the emailed link. It answers with an HTML page.
func (h *Handler) Confirm(c *fiber.Ctx) error {
	res, err := h.service.Confirm(c.UserContext(), c.Params("token"))
	if err != nil {
		if isNotFound(err) {
			return h.html(c, http.StatusNotFound, views.NotFoundPage())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	claims := res.Entry.Claims
	c.Set(ConfirmedTokenHeader, res.Token)
	return h.html(c, http.StatusOK, views.ConfirmedPage(views.ConfirmedPageData{
		CardCode:     Mask(claims.CardCode, visibleChars),
		Amount:       views.FormatAmount(claims.Amount),
		Installments: claims.Installments,
		ValidUntil:   claims.ExpiresAt.Time,
	}))
}

func (h *Handler) html(c *fiber.Ctx, status int, component templ.Component) error {
	body, err := views.Render(c.UserContext(), component)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	c.Type("html", "utf-8")
	return c.Status(status).SendString(body)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, tokens.ErrInvalid) || errors.Is(err, tokens.ErrExpired)
}
