package views

import "time"

// ConfirmationEmailData feeds the confirmation email. Card code and holder
// name must already be masked.
type ConfirmationEmailData struct {
	HolderName   string
	CardCode     string
	Expiry       string
	Amount       string
	Installments int
	ConfirmURL   string
	// QRCode is an optional image data URI pointing at ConfirmURL.
	QRCode string
}

// ConfirmedPageData feeds the page shown after a successful confirmation.
type ConfirmedPageData struct {
	CardCode     string
	Amount       string
	Installments int
	ValidUntil   time.Time
}

const validUntilLayout = "02/01/2006 15:04:05 MST"
