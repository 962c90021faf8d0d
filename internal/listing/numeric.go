package listing

import (
	"strconv"
	"strings"
)

// PriceMarkers are phrases meaning the ad has no usable price:
// negotiable, no price, and contact for price.
var PriceMarkers = []string{"توافقی", "بدون قیمت", "تماس"}

var digitReplacer = strings.NewReplacer(
	"۰", "0", "۱", "1", "۲", "2", "۳", "3", "۴", "4",
	"۵", "5", "۶", "6", "۷", "7", "۸", "8", "۹", "9",
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
)

// ToDigits maps Persian and Arabic-Indic digits to ASCII and trims whitespace
func ToDigits(text string) string {
	return strings.TrimSpace(digitReplacer.Replace(text))
}

// ParseInteger extracts a non-negative integer from localized text.
// Separators are dropped; anything else that is not a digit is ignored.
func ParseInteger(text string) (int64, bool) {
	if text == "" {
		return 0, false
	}

	var b strings.Builder
	for _, r := range ToDigits(text) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	digits := b.String()
	if digits == "" {
		return 0, false
	}

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParsePrice parses a price phrase. Marker phrases win over any digits in the text.
func ParsePrice(text string) (int64, bool) {
	if text == "" {
		return 0, false
	}
	if HasPriceMarker(text) {
		return 0, false
	}
	return ParseInteger(text)
}

// HasPriceMarker reports whether text contains one of PriceMarkers
func HasPriceMarker(text string) bool {
	for _, marker := range PriceMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// IntPtr returns a pointer to n, or nil when ok is false
func IntPtr(n int64, ok bool) *int64 {
	if !ok {
		return nil
	}
	return &n
}
