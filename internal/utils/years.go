package utils

import (
	"time"

	"github.com/verdantlabs/landchange/internal/models"
)

// YearWindow returns the closed interval [year-01-01, year-12-31] in UTC.
func YearWindow(year int) models.DateRange {
	return models.DateRange{
		Start: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
}

// FormatDay renders a date the way archive filters expect it.
func FormatDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(value string) (time.Time, error) {
	return time.Parse("2006-01-02", value)
}
