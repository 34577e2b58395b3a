package billing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Stats rolls one period of a matrix up into collection figures.
type Stats struct {
	Period                string          `json:"period"`
	TotalStudents         int             `json:"total_students"`
	TotalActiveStudents   int             `json:"total_active_students"`
	PaidCount             int             `json:"paid_count"`
	OverdueCount          int             `json:"overdue_count"`
	PendingCount          int             `json:"pending_count"`
	NotYetDueCount        int             `json:"not_yet_due_count"`
	CompletionRatePercent int             `json:"completion_rate_percent"`
	ExpectedRevenue       decimal.Decimal `json:"expected_revenue"`
	CollectedRevenue      decimal.Decimal `json:"collected_revenue"`
	OutstandingRevenue    decimal.Decimal `json:"outstanding_revenue"`
	Warnings              int             `json:"warnings"`
}

// Aggregate computes the figures of period (YYYY-MM) from the matrix. Only ACTIVE
// students with an applicable cell in the period are counted.
func Aggregate(m *Matrix, period string) (Stats, error) {
	stats := Stats{
		Period:             period,
		ExpectedRevenue:    decimal.Zero,
		CollectedRevenue:   decimal.Zero,
		OutstandingRevenue: decimal.Zero,
	}
	year, monthIndex, err := ParsePeriodKey(period)
	if err != nil {
		return stats, &ValidationError{Field: "period", Reason: err.Error()}
	}
	stats.Period = PeriodLabel(year, monthIndex)
	if m == nil {
		return stats, nil
	}
	if year != m.Year {
		return stats, &ValidationError{Field: "period", Reason: fmt.Sprintf("period %s is outside matrix year %d", stats.Period, m.Year)}
	}

	stats.TotalStudents = len(m.Rows)
	for _, row := range m.Rows {
		if !row.Student.IsActive() {
			continue
		}
		cell, ok := row.Cell(monthIndex)
		if !ok {
			continue
		}
		stats.TotalActiveStudents++
		stats.ExpectedRevenue = stats.ExpectedRevenue.Add(row.Student.BaseFee)
		switch cell.Status {
		case StatusPaid:
			stats.PaidCount++
			if cell.MatchedPayment != nil {
				stats.CollectedRevenue = stats.CollectedRevenue.Add(cell.MatchedPayment.Amount)
			}
		case StatusOverdue:
			stats.OverdueCount++
			stats.OutstandingRevenue = stats.OutstandingRevenue.Add(row.Student.BaseFee)
		case StatusPending:
			stats.PendingCount++
		default:
			stats.NotYetDueCount++
		}
	}
	for _, warning := range m.Warnings {
		if warning.PeriodKey == stats.Period {
			stats.Warnings++
		}
	}
	stats.CompletionRatePercent = CompletionRate(stats.PaidCount, stats.TotalActiveStudents)
	return stats, nil
}

// CompletionRate returns round(paid/total × 100) clamped to [0,100], and 0 for no students.
func CompletionRate(paid, total int) int {
	if total <= 0 || paid <= 0 {
		return 0
	}
	rate := int(math.Round(float64(paid) / float64(total) * 100))
	if rate > 100 {
		return 100
	}
	return rate
}
