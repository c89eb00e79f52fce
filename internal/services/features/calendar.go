package features

import (
	"time"

	"RiskPulse/internal/domain/models"
)

// DateKey encodes a calendar day as yyyymmdd.
func DateKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// VintageMonth is the cohort tag of a loan. It depends only on the issue date,
// so it never changes over the loan's lifetime.
func VintageMonth(issued time.Time) string {
	return issued.Format("2006-01")
}

// Quarter returns 1..4.
func Quarter(t time.Time) int {
	return (int(t.Month())-1)/3 + 1
}

// NewTimeDimension builds the calendar row for a day.
func NewTimeDimension(t time.Time) models.TimeDimension {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return models.TimeDimension{
		DateKey:      DateKey(day),
		Date:         day,
		Year:         day.Year(),
		Quarter:      Quarter(day),
		Month:        int(day.Month()),
		MonthName:    day.Month().String(),
		VintageMonth: VintageMonth(day),
	}
}
