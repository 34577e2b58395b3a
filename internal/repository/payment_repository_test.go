package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-finance-api/internal/models"
)

var paymentRowColumns = []string{"id", "student_id", "amount", "payment_date", "category", "status", "period_key", "payment_method", "invoice_number", "notes", "created_at", "updated_at"}

func TestPaymentRepositoryListTuitionForYear(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	paidAt := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(paymentRowColumns).
		AddRow("p-1", "s-1", "500000.00", paidAt, "TUITION", "COMPLETED", "2024-01", "transfer", nil, "", paidAt, paidAt).
		AddRow("p-2", "s-1", "500000.00", paidAt.AddDate(0, 1, 0), "TUITION", "PENDING", nil, "cash", "INV-2", "", paidAt, paidAt)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE p.category = $1 AND (p.period_key LIKE $2 OR (p.payment_date >= $3 AND p.payment_date < $4))")).
		WithArgs(models.PaymentCategoryTuition, "2024-%",
			time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
			time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(rows)

	payments, err := repo.ListTuitionForYear(context.Background(), 2024)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	require.NotNil(t, payments[0].PeriodKey)
	assert.Equal(t, "2024-01", *payments[0].PeriodKey)
	assert.Nil(t, payments[1].PeriodKey)
	require.NotNil(t, payments[1].InvoiceNumber)
	assert.Equal(t, models.PaymentStatusPending, payments[1].Status)
	assert.True(t, decimal.NewFromInt(500000).Equal(payments[0].Amount))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryListWithFilters(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	where := "FROM payments p JOIN students s ON s.id = p.student_id WHERE 1=1 AND p.student_id = $1 AND (p.period_key LIKE $2 OR EXTRACT(YEAR FROM p.payment_date) = $3) AND p.category = $4"
	now := time.Now()
	rows := sqlmock.NewRows(append(append([]string{}, paymentRowColumns...), "student_name")).
		AddRow("p-1", "s-1", "500000", now, "TUITION", "COMPLETED", "2024-03", "cash", nil, "", now, now, "Alya")
	mock.ExpectQuery(regexp.QuoteMeta(where + " ORDER BY p.payment_date DESC, p.id ASC LIMIT 20 OFFSET 0")).
		WithArgs("s-1", "2024-%", 2024, models.PaymentCategoryTuition).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) " + where)).
		WithArgs("s-1", "2024-%", 2024, models.PaymentCategoryTuition).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	payments, total, err := repo.List(context.Background(), models.PaymentFilter{StudentID: "s-1", Year: 2024, Category: models.PaymentCategoryTuition})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "Alya", payments[0].StudentName)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	args := make([]driver.Value, len(paymentRowColumns))
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	mock.ExpectExec("INSERT INTO payments").
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(1, 1))

	key := "2024-01"
	payment := &models.Payment{
		StudentID:   "s-1",
		Amount:      decimal.NewFromInt(500000),
		PaymentDate: time.Now(),
		Category:    models.PaymentCategoryTuition,
		Status:      models.PaymentStatusCompleted,
		PeriodKey:   &key,
	}
	require.NoError(t, repo.Create(context.Background(), payment))
	assert.NotEmpty(t, payment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE payments SET status = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("p-1", models.PaymentStatusCompleted, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE payments SET status = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("missing", models.PaymentStatusFailed, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.UpdateStatus(context.Background(), "p-1", models.PaymentStatusCompleted))
	assert.ErrorIs(t, repo.UpdateStatus(context.Background(), "missing", models.PaymentStatusFailed), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryExistsByInvoice(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM payments WHERE invoice_number = $1 LIMIT 1")).
		WithArgs("INV-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(1))

	exists, err := repo.ExistsByInvoice(context.Background(), "INV-1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
