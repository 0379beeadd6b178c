// Package views renders the HTML documents the service hands out: the
// confirmation email and the pages behind the confirmation link.
package views

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/a-h/templ"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const currencySymbol = "R$"

var printer = message.NewPrinter(language.BrazilianPortuguese)

// Render renders tpl into a string.
func Render(ctx context.Context, tpl templ.Component) (string, error) {
	var sb strings.Builder
	if err := tpl.Render(ctx, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// FormatAmount prints a monetary amount with the local currency symbol and
// separators, e.g. "R$ 1.234,50".
func FormatAmount(amount decimal.Decimal) string {
	return printer.Sprintf("%s %.2f", currencySymbol, amount.Round(2).InexactFloat64())
}

// QRCodeDataURI encodes content as a PNG QR code inlined as a data URI.
func QRCodeDataURI(content string, size int) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
