package purchase

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxHolderNameLength = 120
	maxInstallments     = 24
	maxVerificationCode = 9999
)

var expiryPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/[0-9]{2}$`)

// normalize validates in and returns it with whitespace cleaned up.
func (in IssueInput) normalize() (IssueInput, error) {
	in.CardCode = strings.ReplaceAll(strings.TrimSpace(in.CardCode), " ", "")
	in.HolderName = strings.Join(strings.Fields(in.HolderName), " ")
	in.Expiry = strings.TrimSpace(in.Expiry)

	if err := validateCardNumber(in.CardCode); err != nil {
		return IssueInput{}, err
	}
	if in.HolderName == "" {
		return IssueInput{}, fmt.Errorf("%w: holder name is required", ErrValidation)
	}
	if utf8.RuneCountInString(in.HolderName) > maxHolderNameLength {
		return IssueInput{}, fmt.Errorf("%w: holder name is too long", ErrValidation)
	}
	if !expiryPattern.MatchString(in.Expiry) {
		return IssueInput{}, fmt.Errorf("%w: expiry must be MM/YY", ErrValidation)
	}
	if in.VerificationCode < 0 || in.VerificationCode > maxVerificationCode {
		return IssueInput{}, fmt.Errorf("%w: verification code must have at most 4 digits", ErrValidation)
	}
	if !in.Amount.IsPositive() {
		return IssueInput{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if !in.Amount.Equal(in.Amount.Round(2)) {
		return IssueInput{}, fmt.Errorf("%w: amount must have at most 2 decimal places", ErrValidation)
	}
	if in.Installments < 1 || in.Installments > maxInstallments {
		return IssueInput{}, fmt.Errorf("%w: installments must be between 1 and %d", ErrValidation, maxInstallments)
	}
	in.Amount = in.Amount.Round(2)
	return in, nil
}

func validateCardNumber(card string) error {
	if len(card) < 12 || len(card) > 19 {
		return fmt.Errorf("%w: card number must be between 12 and 19 digits", ErrValidation)
	}
	for _, r := range card {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: card number must be numeric", ErrValidation)
		}
	}
	return nil
}

func parseEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: invalid email address", ErrValidation)
	}
	return addr.Address, nil
}
