package tokens

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
)

// Status tags the lifecycle stage a token was signed for.
type Status string

const (
	// StatusAwaiting marks a purchase waiting for the cardholder's confirmation.
	StatusAwaiting Status = "awaiting"
	// StatusConfirmed marks a purchase the cardholder confirmed.
	StatusConfirmed Status = "confirmed"
)

// Claims is the purchase payload carried inside a signed token. Values are
// treated as immutable once signed: derive new claims with WithStatus.
type Claims struct {
	CardCode         string          `json:"card_code"`
	HolderName       string          `json:"holder_name"`
	Expiry           string          `json:"expiry"`
	VerificationCode int             `json:"verification_code"`
	Amount           decimal.Decimal `json:"amount"`
	Installments     int             `json:"installments"`
	Status           Status          `json:"status"`
	jwt.RegisteredClaims
}

// WithStatus returns a copy of the purchase fields tagged with status. The
// registered claims (expiry, issue time, id) are cleared so the copy can be
// signed as a new token.
func (c Claims) WithStatus(status Status) Claims {
	c.Status = status
	c.RegisteredClaims = jwt.RegisteredClaims{}
	return c
}

// Validate is invoked by the jwt parser after the registered claims pass.
func (c Claims) Validate() error {
	if c.CardCode == "" {
		return errors.New("missing card code")
	}
	switch c.Status {
	case StatusAwaiting, StatusConfirmed:
		return nil
	default:
		return errors.New("unknown status")
	}
}
