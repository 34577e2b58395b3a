package billing

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-finance-api/internal/models"
)

// StatusCell is one resolved (student, period) obligation.
type StatusCell struct {
	StudentID      string          `json:"student_id"`
	Period         BillingPeriod   `json:"period"`
	Status         Status          `json:"status"`
	MatchedPayment *models.Payment `json:"matched_payment,omitempty"`
}

// MatrixRow holds a student's applicable cells in chronological order.
type MatrixRow struct {
	Student models.Student `json:"student"`
	Cells   []StatusCell   `json:"cells"`
}

// Cell returns the row's cell for a 0-based month index.
func (r MatrixRow) Cell(monthIndex int) (StatusCell, bool) {
	for _, cell := range r.Cells {
		if cell.Period.MonthIndex == monthIndex {
			return cell, true
		}
	}
	return StatusCell{}, false
}

// RowSummary totals a single student's year.
type RowSummary struct {
	PaidCount      int             `json:"paid_count"`
	OverdueCount   int             `json:"overdue_count"`
	PendingCount   int             `json:"pending_count"`
	NotYetDueCount int             `json:"not_yet_due_count"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	Outstanding    decimal.Decimal `json:"outstanding"`
}

// Summary counts the row's statuses and sums paid and overdue amounts.
func (r MatrixRow) Summary() RowSummary {
	summary := RowSummary{PaidAmount: decimal.Zero, Outstanding: decimal.Zero}
	for _, cell := range r.Cells {
		switch cell.Status {
		case StatusPaid:
			summary.PaidCount++
			if cell.MatchedPayment != nil {
				summary.PaidAmount = summary.PaidAmount.Add(cell.MatchedPayment.Amount)
			}
		case StatusOverdue:
			summary.OverdueCount++
			summary.Outstanding = summary.Outstanding.Add(r.Student.BaseFee)
		case StatusPending:
			summary.PendingCount++
		default:
			summary.NotYetDueCount++
		}
	}
	return summary
}

// Matrix is the student × period grid for one year.
type Matrix struct {
	Year     int                    `json:"year"`
	AsOf     time.Time              `json:"as_of"`
	Strategy MatchStrategy          `json:"strategy"`
	Columns  []string               `json:"columns"`
	Rows     []MatrixRow            `json:"rows"`
	Errors   []*ValidationError     `json:"errors,omitempty"`
	Warnings []*AmbiguousMatchError `json:"warnings,omitempty"`
}

// Row returns the row of a student.
func (m *Matrix) Row(studentID string) (MatrixRow, bool) {
	if m == nil {
		return MatrixRow{}, false
	}
	for _, row := range m.Rows {
		if row.Student.ID == studentID {
			return row, true
		}
	}
	return MatrixRow{}, false
}

// MatrixOptions tunes matrix construction.
type MatrixOptions struct {
	Strategy MatchStrategy
	Location *time.Location
}

// BuildMatrix resolves every applicable period of year for each student. Students with an
// invalid billing configuration are reported in Errors and left out; the rest of the
// matrix is still built. Rows are ordered by name, then id.
func BuildMatrix(students []models.Student, payments []models.Payment, year int, asOf time.Time, opts MatrixOptions) *Matrix {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	ledger := NewLedger(payments, opts.Strategy, loc)

	matrix := &Matrix{
		Year:     year,
		AsOf:     asOf,
		Strategy: ledger.Strategy(),
		Columns:  make([]string, 0, MonthsPerYear),
		Rows:     make([]MatrixRow, 0, len(students)),
	}
	for idx := 0; idx < MonthsPerYear; idx++ {
		matrix.Columns = append(matrix.Columns, PeriodLabel(year, idx))
	}

	seen := make(map[string]struct{}, len(students))
	for _, student := range sortStudents(students) {
		if _, dup := seen[student.ID]; dup && student.ID != "" {
			matrix.Errors = append(matrix.Errors, &ValidationError{StudentID: student.ID, Field: "id", Reason: "duplicate student record"})
			continue
		}
		seen[student.ID] = struct{}{}

		row, warnings, err := buildRow(student, ledger, year, asOf, loc)
		if err != nil {
			matrix.Errors = append(matrix.Errors, asValidationError(err, student.ID))
			continue
		}
		matrix.Warnings = append(matrix.Warnings, warnings...)
		matrix.Rows = append(matrix.Rows, row)
	}
	return matrix
}

func buildRow(student models.Student, ledger *Ledger, year int, asOf time.Time, loc *time.Location) (MatrixRow, []*AmbiguousMatchError, error) {
	periods, err := BuildPeriods(year, student, loc)
	if err != nil {
		return MatrixRow{}, nil, err
	}
	row := MatrixRow{Student: student, Cells: make([]StatusCell, 0, len(periods))}
	var warnings []*AmbiguousMatchError
	for _, period := range periods {
		if !period.Applicable {
			continue
		}
		matched, matchErr := ledger.Match(student.ID, period)
		var ambiguous *AmbiguousMatchError
		if errors.As(matchErr, &ambiguous) {
			warnings = append(warnings, ambiguous)
		}
		status, err := ResolveStatus(period, asOf, student, matched)
		if err != nil {
			return MatrixRow{}, nil, err
		}
		if status == StatusNotYetDue && ledger.HasPending(student.ID, period) {
			status = StatusPending
		}
		row.Cells = append(row.Cells, StatusCell{
			StudentID:      student.ID,
			Period:         period,
			Status:         status,
			MatchedPayment: matched,
		})
	}
	return row, warnings, nil
}

func sortStudents(students []models.Student) []models.Student {
	ordered := make([]models.Student, len(students))
	copy(ordered, students)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := strings.ToLower(ordered[i].Name), strings.ToLower(ordered[j].Name)
		if a == b {
			return ordered[i].ID < ordered[j].ID
		}
		return a < b
	})
	return ordered
}

func asValidationError(err error, studentID string) *ValidationError {
	var validation *ValidationError
	if errors.As(err, &validation) {
		return validation
	}
	return &ValidationError{StudentID: studentID, Field: "student", Reason: err.Error()}
}
