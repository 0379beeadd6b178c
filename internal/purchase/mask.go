package purchase

import "strings"

const (
	maskSymbol   = "*"
	visibleChars = 4
)

// Mask replaces all but the last visible characters of s with '*'. Strings
// no longer than visible are returned unchanged.
func Mask(s string, visible int) string {
	runes := []rune(s)
	if visible < 0 {
		visible = 0
	}
	if len(runes) <= visible {
		return s
	}
	hidden := len(runes) - visible
	return strings.Repeat(maskSymbol, hidden) + string(runes[hidden:])
}

func lastFour(s string) string {
	runes := []rune(s)
	if len(runes) <= visibleChars {
		return s
	}
	return string(runes[len(runes)-visibleChars:])
}
