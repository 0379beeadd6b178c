package purchase

import (
	"time"

	"github.com/shopspring/decimal"
)

// IssueRequest is the body of POST /purchases. Numeric fields that fail to
// decode are rejected by the body parser before reaching the service.
type IssueRequest struct {
	CardCode         string          `json:"card_code"`
	HolderName       string          `json:"holder_name"`
	Expiry           string          `json:"expiry"`
	VerificationCode int             `json:"verification_code"`
	Amount           decimal.Decimal `json:"amount"`
	Installments     int             `json:"installments"`
}

// IssueResponse returns the pending token.
type IssueResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ContactRequest is the body of POST /purchases/:token/contact.
type ContactRequest struct {
	Email string `json:"email"`
}

// TokenResponse is one element of the pending and confirmed listings.
type TokenResponse struct {
	Token            string          `json:"token"`
	CardCode         string          `json:"card_code"`
	HolderName       string          `json:"holder_name"`
	Expiry           string          `json:"expiry"`
	VerificationCode int             `json:"verification_code"`
	Amount           decimal.Decimal `json:"amount"`
	Installments     int             `json:"installments"`
	Status           string          `json:"status"`
	Email            *string         `json:"email"`
	ExpiresAt        time.Time       `json:"expires_at"`
	ConfirmedAt      *time.Time      `json:"confirmed_at,omitempty"`
}

func pendingResponse(item PendingItem) TokenResponse {
	c := item.Entry.Claims
	return TokenResponse{
		Token:            item.Token,
		CardCode:         c.CardCode,
		HolderName:       c.HolderName,
		Expiry:           c.Expiry,
		VerificationCode: c.VerificationCode,
		Amount:           c.Amount,
		Installments:     c.Installments,
		Status:           string(c.Status),
		Email:            optional(item.Entry.Email),
		ExpiresAt:        c.ExpiresAt.Time.UTC(),
	}
}

func confirmedResponse(item ConfirmedItem) TokenResponse {
	c := item.Entry.Claims
	confirmedAt := item.Entry.ConfirmedAt.UTC()
	return TokenResponse{
		Token:            item.Token,
		CardCode:         c.CardCode,
		HolderName:       c.HolderName,
		Expiry:           c.Expiry,
		VerificationCode: c.VerificationCode,
		Amount:           c.Amount,
		Installments:     c.Installments,
		Status:           string(c.Status),
		Email:            optional(item.Entry.Email),
		ExpiresAt:        c.ExpiresAt.Time.UTC(),
		ConfirmedAt:      &confirmedAt,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
