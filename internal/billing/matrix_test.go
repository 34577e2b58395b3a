package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-finance-api/internal/models"
)

func statusByLabel(row MatrixRow) map[string]Status {
	result := make(map[string]Status, len(row.Cells))
	for _, cell := range row.Cells {
		result[cell.Period.Label] = cell.Status
	}
	return result
}

func TestBuildMatrix_NoPaymentsOverdue(t *testing.T) {
	matrix := BuildMatrix([]models.Student{newStudent("stu-1", "Ani")}, nil, 2024, date(2024, time.February, 15), MatrixOptions{})

	require.Len(t, matrix.Rows, 1)
	require.Len(t, matrix.Rows[0].Cells, 12)
	statuses := statusByLabel(matrix.Rows[0])
	assert.Equal(t, StatusOverdue, statuses["2024-01"])
	assert.Equal(t, StatusOverdue, statuses["2024-02"])
	assert.Equal(t, StatusNotYetDue, statuses["2024-03"])
	assert.Empty(t, matrix.Errors)
	assert.Len(t, matrix.Columns, 12)
}

func TestBuildMatrix_JanuaryPaid(t *testing.T) {
	payments := []models.Payment{tuitionPayment("pay-1", "stu-1", "2024-01", date(2024, time.January, 8))}
	matrix := BuildMatrix([]models.Student{newStudent("stu-1", "Ani")}, payments, 2024, date(2024, time.February, 15), MatrixOptions{})

	statuses := statusByLabel(matrix.Rows[0])
	assert.Equal(t, StatusPaid, statuses["2024-01"])
	assert.Equal(t, StatusOverdue, statuses["2024-02"])

	jan, ok := matrix.Rows[0].Cell(0)
	require.True(t, ok)
	require.NotNil(t, jan.MatchedPayment)
	assert.Equal(t, "pay-1", jan.MatchedPayment.ID)
}

func TestBuildMatrix_BeforeDueDayNotYetDue(t *testing.T) {
	matrix := BuildMatrix([]models.Student{newStudent("stu-1", "Ani")}, nil, 2024, date(2024, time.February, 5), MatrixOptions{})

	statuses := statusByLabel(matrix.Rows[0])
	assert.Equal(t, StatusOverdue, statuses["2024-01"])
	assert.Equal(t, StatusNotYetDue, statuses["2024-02"])
}

func TestBuildMatrix_DuplicatePaymentsStillPaid(t *testing.T) {
	payments := []models.Payment{
		tuitionPayment("pay-2", "stu-1", "2024-01", date(2024, time.January, 9)),
		tuitionPayment("pay-1", "stu-1", "2024-01", date(2024, time.January, 3)),
	}
	matrix := BuildMatrix([]models.Student{newStudent("stu-1", "Ani")}, payments, 2024, date(2024, time.February, 15), MatrixOptions{})

	jan, ok := matrix.Rows[0].Cell(0)
	require.True(t, ok)
	assert.Equal(t, StatusPaid, jan.Status)
	assert.Equal(t, "pay-1", jan.MatchedPayment.ID)
	require.Len(t, matrix.Warnings, 1)
	assert.Equal(t, "pay-1", matrix.Warnings[0].ChosenID)
}

func TestBuildMatrix_PendingPaymentRefinesNotYetDue(t *testing.T) {
	pending := tuitionPayment("pay-1", "stu-1", "2024-02", date(2024, time.February, 2))
	pending.Status = models.PaymentStatusPending
	pendingLate := tuitionPayment("pay-2", "stu-1", "2024-01", date(2024, time.February, 2))
	pendingLate.Status = models.PaymentStatusPending

	matrix := BuildMatrix([]models.Student{newStudent("stu-1", "Ani")}, []models.Payment{pending, pendingLate}, 2024, date(2024, time.February, 5), MatrixOptions{})

	statuses := statusByLabel(matrix.Rows[0])
	assert.Equal(t, StatusPending, statuses["2024-02"])
	assert.Equal(t, StatusOverdue, statuses["2024-01"])
}

func TestBuildMatrix_SkipsMonthsBeforeEnrollment(t *testing.T) {
	student := newStudent("stu-1", "Ani")
	student.EnrollmentDate = date(2024, time.July, 15)

	matrix := BuildMatrix([]models.Student{student}, nil, 2024, date(2024, time.December, 31), MatrixOptions{})

	require.Len(t, matrix.Rows, 1)
	require.Len(t, matrix.Rows[0].Cells, 6)
	assert.Equal(t, "2024-07", matrix.Rows[0].Cells[0].Period.Label)
	for _, cell := range matrix.Rows[0].Cells {
		assert.True(t, cell.Period.Applicable)
	}
	_, ok := matrix.Rows[0].Cell(0)
	assert.False(t, ok)
}

func TestBuildMatrix_PartialFailure(t *testing.T) {
	broken := newStudent("stu-2", "Budi")
	broken.BillingDueDay = 30
	negative := newStudent("stu-3", "Citra")
	negative.BaseFee = decimal.NewFromInt(-5)

	matrix := BuildMatrix([]models.Student{newStudent("stu-1", "Ani"), broken, negative}, nil, 2024, date(2024, time.March, 1), MatrixOptions{})

	require.Len(t, matrix.Rows, 1)
	assert.Equal(t, "stu-1", matrix.Rows[0].Student.ID)
	require.Len(t, matrix.Errors, 2)
	assert.Equal(t, "stu-2", matrix.Errors[0].StudentID)
	assert.Equal(t, "billing_due_day", matrix.Errors[0].Field)
	assert.Equal(t, "stu-3", matrix.Errors[1].StudentID)
	assert.Equal(t, "base_fee", matrix.Errors[1].Field)
}

func TestBuildMatrix_StableOrderingAndNoDoubleCounting(t *testing.T) {
	students := []models.Student{
		newStudent("stu-3", "citra"),
		newStudent("stu-2", "Budi"),
		newStudent("stu-1", "Ani"),
		newStudent("stu-0", "Budi"),
		newStudent("stu-1", "Ani"),
	}
	matrix := BuildMatrix(students, nil, 2024, date(2024, time.March, 1), MatrixOptions{})

	ids := make([]string, 0, len(matrix.Rows))
	for _, row := range matrix.Rows {
		ids = append(ids, row.Student.ID)
		seen := map[int]bool{}
		for _, cell := range row.Cells {
			assert.False(t, seen[cell.Period.MonthIndex])
			seen[cell.Period.MonthIndex] = true
		}
	}
	assert.Equal(t, []string{"stu-1", "stu-0", "stu-2", "stu-3"}, ids)
	require.Len(t, matrix.Errors, 1)
	assert.Equal(t, "duplicate student record", matrix.Errors[0].Reason)
}

func TestBuildMatrix_Idempotent(t *testing.T) {
	students := []models.Student{newStudent("stu-2", "Budi"), newStudent("stu-1", "Ani")}
	payments := []models.Payment{
		tuitionPayment("pay-1", "stu-1", "2024-01", date(2024, time.January, 8)),
		tuitionPayment("pay-2", "stu-2", "2024-02", date(2024, time.February, 1)),
		tuitionPayment("pay-3", "stu-2", "2024-02", date(2024, time.February, 1)),
	}
	asOf := date(2024, time.April, 2)

	first := BuildMatrix(students, payments, 2024, asOf, MatrixOptions{})
	second := BuildMatrix(students, payments, 2024, asOf, MatrixOptions{})
	assert.Equal(t, first, second)
	assert.Equal(t, "stu-2", students[0].ID, "input order must not be mutated")
}

func TestBuildMatrix_EmptyInput(t *testing.T) {
	matrix := BuildMatrix(nil, nil, 2024, date(2024, time.March, 1), MatrixOptions{})
	assert.Empty(t, matrix.Rows)
	assert.Empty(t, matrix.Errors)
	assert.Len(t, matrix.Columns, 12)
}

func TestMatrixRow_Summary(t *testing.T) {
	payments := []models.Payment{tuitionPayment("pay-1", "stu-1", "2024-01", date(2024, time.January, 8))}
	matrix := BuildMatrix([]models.Student{newStudent("stu-1", "Ani")}, payments, 2024, date(2024, time.March, 15), MatrixOptions{})

	summary := matrix.Rows[0].Summary()
	assert.Equal(t, 1, summary.PaidCount)
	assert.Equal(t, 2, summary.OverdueCount)
	assert.Equal(t, 9, summary.NotYetDueCount)
	assert.True(t, summary.PaidAmount.Equal(decimal.NewFromInt(500000)))
	assert.True(t, summary.Outstanding.Equal(decimal.NewFromInt(1000000)))
}
