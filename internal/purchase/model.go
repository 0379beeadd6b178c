package purchase

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/purchase_confirm/internal/tokens"
)

// IssueInput captures the purchase data sent by the card network.
type IssueInput struct {
	CardCode         string
	HolderName       string
	Expiry           string
	VerificationCode int
	Amount           decimal.Decimal
	Installments     int
}

// PendingEntry is stored under a pending token until it is confirmed or expires.
type PendingEntry struct {
	Claims tokens.Claims
	// Email is empty until a contact address is attached.
	Email string
}

func (e PendingEntry) valid() bool {
	return e.Claims.CardCode != "" && e.Claims.Status == tokens.StatusAwaiting && e.Claims.ExpiresAt != nil
}

// ConfirmedEntry is stored under the re-signed token produced by Confirm.
type ConfirmedEntry struct {
	Claims      tokens.Claims
	Email       string
	ConfirmedAt time.Time
}

func (e ConfirmedEntry) valid() bool {
	return e.Claims.CardCode != "" && e.Claims.Status == tokens.StatusConfirmed && e.Claims.ExpiresAt != nil
}

// Issued is returned by Issue.
type Issued struct {
	Token     string
	ExpiresAt time.Time
}

// Confirmation is returned by Confirm.
type Confirmation struct {
	Token string
	Entry ConfirmedEntry
}

// PendingItem is one row of ListPending.
type PendingItem struct {
	Token string
	Entry PendingEntry
}

// ConfirmedItem is one row of ListConfirmed.
type ConfirmedItem struct {
	Token string
	Entry ConfirmedEntry
}

// Stats reports the current size of both tiers.
type Stats struct {
	Pending   int
	Confirmed int
}
