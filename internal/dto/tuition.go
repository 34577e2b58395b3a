package dto

import (
	"time"

	"github.com/noah-isme/sma-finance-api/internal/billing"
	"github.com/noah-isme/sma-finance-api/internal/models"
)

// TuitionStatsResponse carries the collection cards of one billing period.
type TuitionStatsResponse struct {
	billing.Stats
	Year     int                   `json:"year"`
	AsOf     time.Time             `json:"as_of"`
	Strategy billing.MatchStrategy `json:"strategy"`
}

// StudentTuitionCard is a single student's row of the yearly matrix with its totals.
type StudentTuitionCard struct {
	Student models.Student       `json:"student"`
	Year    int                  `json:"year"`
	AsOf    time.Time            `json:"as_of"`
	Cells   []billing.StatusCell `json:"cells"`
	Summary billing.RowSummary   `json:"summary"`
}

// WarmResult reports what a background refresh produced.
type WarmResult struct {
	Year     int            `json:"year"`
	Rows     int            `json:"rows"`
	Errors   int            `json:"errors"`
	Warnings int            `json:"warnings"`
	Current  *billing.Stats `json:"current,omitempty"`
}
