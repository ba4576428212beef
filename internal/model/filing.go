package model

import (
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// NormalizeFiledDate returns the YYYY-MM-DD part of a filed date such as
// "2025-10-31 00:00:00". It reports false when no valid date is present.
func NormalizeFiledDate(filed string) (string, bool) {
	t, ok := parseFiledDate(filed)
	if !ok {
		return "", false
	}
	return t.Format(dateLayout), true
}

// FiscalYear derives the fiscal year from the filed date, falling back to
// the two-digit year segment of an SEC access number
// ("0000320193-25-000079" is 2025).
func FiscalYear(filed, accessNumber string) (int, bool) {
	if t, ok := parseFiledDate(filed); ok {
		return t.Year(), true
	}
	parts := strings.Split(accessNumber, "-")
	if len(parts) < 2 {
		return 0, false
	}
	yy, err := strconv.Atoi(parts[1])
	if err != nil || yy < 0 || yy > 99 {
		return 0, false
	}
	if yy < 50 {
		return 2000 + yy, true
	}
	return 1900 + yy, true
}

func parseFiledDate(filed string) (time.Time, bool) {
	filed = strings.TrimSpace(filed)
	if filed == "" {
		return time.Time{}, false
	}
	datePart, _, _ := strings.Cut(filed, " ")
	t, err := time.Parse(dateLayout, datePart)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
