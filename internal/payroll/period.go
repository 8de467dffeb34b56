package payroll

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/nomina/internal/shared"
)

const periodLayout = "2006-01-02"

// PeriodFor returns the fortnight key containing t: the 1st or the 16th of the month.
func PeriodFor(t time.Time) string {
	t = t.UTC()
	day := 1
	if t.Day() >= 16 {
		day = 16
	}
	return time.Date(t.Year(), t.Month(), day, 0, 0, 0, 0, time.UTC).Format(periodLayout)
}

// ParsePeriod accepts any calendar date and returns the key of its fortnight.
func ParsePeriod(raw string) (string, error) {
	t, err := time.Parse(periodLayout, strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("payroll: period %q: %w", raw, shared.ErrInvalidPeriod)
	}
	return PeriodFor(t), nil
}

// PeriodBounds returns the first and last day of the fortnight starting at period.
func PeriodBounds(period string) (time.Time, time.Time, error) {
	key, err := ParsePeriod(period)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, _ := time.Parse(periodLayout, key)
	if start.Day() == 1 {
		return start, start.AddDate(0, 0, 14), nil
	}
	return start, start.AddDate(0, 1, -start.Day()), nil
}
