package events

import (
	"strconv"
	"strings"
	"time"
)

func formatAmount(v int64) string {
	return strconv.FormatInt(v, 10)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func normalizeStatus(status string) string {
	return strings.ToUpper(strings.TrimSpace(status))
}

func setIfNotEmpty(attrs map[string]string, key, value string) {
	if strings.TrimSpace(value) != "" {
		attrs[key] = value
	}
}
