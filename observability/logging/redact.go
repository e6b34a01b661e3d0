package logging

import (
	"log/slog"
	"sort"
	"strings"
	"unicode"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

var redactionAllowlist = map[string]struct{}{
	"service":      {},
	"env":          {},
	"message":      {},
	"severity":     {},
	"timestamp":    {},
	"error":        {},
	"reason":       {},
	"component":    {},
	"userid":       {},
	"partnerid":    {},
	"withdrawalid": {},
	"commissionid": {},
	"status":       {},
	"amount":       {},
}

// IsAllowlisted reports whether the provided key is exempt from automatic redaction.
func IsAllowlisted(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := redactionAllowlist[normalized]
	return ok
}

// RedactionAllowlist returns a sorted copy of the log keys that are allowed to be emitted
// without redaction.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskValue returns the canonical redacted placeholder for non-empty values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField returns a slog.Attr that redacts the supplied value unless the key is
// explicitly allowlisted. The original key casing is preserved.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskDigits hides every digit of a card or account number except the last
// four. Values with four digits or fewer are fully redacted.
func MaskDigits(value string) string {
	digits := 0
	for _, r := range value {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits == 0 {
		return MaskValue(value)
	}
	if digits <= 4 {
		return RedactedValue
	}
	var b strings.Builder
	seen := 0
	for _, r := range value {
		if !unicode.IsDigit(r) {
			continue
		}
		seen++
		if seen <= digits-4 {
			b.WriteByte('*')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// PaymentField masks a payment identifier down to its last four digits.
func PaymentField(key, value string) slog.Attr {
	return slog.String(key, MaskDigits(value))
}
