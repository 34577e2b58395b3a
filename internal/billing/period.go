// Package billing resolves tuition obligations into per-period payment statuses.
// Everything in it is a pure function of its inputs; callers inject the as-of instant.
package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/sma-finance-api/internal/models"
)

// PeriodKeyLayout is the canonical YYYY-MM period label.
const PeriodKeyLayout = "2006-01"

// MonthsPerYear is the number of billing periods in a calendar year.
const MonthsPerYear = 12

// BillingPeriod is one calendar month of a student's tuition obligation.
type BillingPeriod struct {
	Year       int       `json:"year"`
	MonthIndex int       `json:"month_index"`
	Label      string    `json:"label"`
	DueDate    time.Time `json:"due_date"`
	Applicable bool      `json:"applicable"`
}

// OverdueFrom is the first instant at which an unpaid period is late: the day after the due day.
func (p BillingPeriod) OverdueFrom() time.Time {
	return p.DueDate.AddDate(0, 0, 1)
}

func (p BillingPeriod) location() *time.Location {
	if loc := p.DueDate.Location(); loc != nil {
		return loc
	}
	return time.UTC
}

// PeriodLabel formats a 0-based month index of year as YYYY-MM.
func PeriodLabel(year, monthIndex int) string {
	return fmt.Sprintf("%04d-%02d", year, monthIndex+1)
}

// ParsePeriodKey splits a YYYY-MM label into its year and 0-based month index.
func ParsePeriodKey(key string) (int, int, error) {
	t, err := time.Parse(PeriodKeyLayout, strings.TrimSpace(key))
	if err != nil {
		return 0, 0, fmt.Errorf("period key %q must use the YYYY-MM format", key)
	}
	return t.Year(), int(t.Month()) - 1, nil
}

// NormalizePeriodKey rewrites a YYYY-MM label into its canonical zero-padded form.
func NormalizePeriodKey(key string) (string, error) {
	year, month, err := ParsePeriodKey(key)
	if err != nil {
		return "", err
	}
	return PeriodLabel(year, month), nil
}

// PeriodKeyFor returns the label of the month containing t in loc.
func PeriodKeyFor(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return PeriodLabel(t.Year(), int(t.Month())-1)
}

// BuildPeriods returns the twelve billing periods of year for a student, January first.
// Months before the enrollment month are marked not applicable. The enrollment date is
// treated as a calendar date, independent of its stored time zone.
func BuildPeriods(year int, student models.Student, loc *time.Location) ([]BillingPeriod, error) {
	if err := ValidateStudent(student); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	enrolled := student.EnrollmentDate
	firstBillable := time.Date(enrolled.Year(), enrolled.Month(), 1, 0, 0, 0, 0, loc)

	periods := make([]BillingPeriod, 0, MonthsPerYear)
	for idx := 0; idx < MonthsPerYear; idx++ {
		month := time.Month(idx + 1)
		start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
		periods = append(periods, BillingPeriod{
			Year:       year,
			MonthIndex: idx,
			Label:      PeriodLabel(year, idx),
			DueDate:    time.Date(year, month, student.BillingDueDay, 0, 0, 0, 0, loc),
			Applicable: !start.Before(firstBillable),
		})
	}
	return periods, nil
}
