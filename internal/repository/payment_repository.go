package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-finance-api/internal/models"
)

const paymentColumns = "p.id, p.student_id, p.amount, p.payment_date, p.category, p.status, p.period_key, p.payment_method, p.invoice_number, p.notes, p.created_at, p.updated_at"

// PaymentRepository manages persistence for payment records.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs a PaymentRepository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// List returns payments with their student names, newest first.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("p.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Year > 0 {
		conditions = append(conditions, fmt.Sprintf("(p.period_key LIKE $%d OR EXTRACT(YEAR FROM p.payment_date) = $%d)", len(args)+1, len(args)+2))
		args = append(args, fmt.Sprintf("%04d-%%", filter.Year), filter.Year)
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("p.category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("p.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	base := "FROM payments p JOIN students s ON s.id = p.student_id WHERE 1=1"
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s, s.name AS student_name %s ORDER BY p.payment_date DESC, p.id ASC LIMIT %d OFFSET %d", paymentColumns, base, size, offset)
	var payments []models.PaymentDetail
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, total, nil
}

// ListTuitionForYear returns every tuition payment that could match a period of year, either
// through its period key or its payment date. The ledger applies the configured strategy.
func (r *PaymentRepository) ListTuitionForYear(ctx context.Context, year int) ([]models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments p
        WHERE p.category = $1 AND (p.period_key LIKE $2 OR (p.payment_date >= $3 AND p.payment_date < $4))
        ORDER BY p.payment_date ASC, p.id ASC`, paymentColumns)
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	end := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)

	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, models.PaymentCategoryTuition, fmt.Sprintf("%04d-%%", year), start, end); err != nil {
		return nil, fmt.Errorf("list tuition payments: %w", err)
	}
	return payments, nil
}

// FindByID fetches a payment by ID.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.PaymentDetail, error) {
	query := fmt.Sprintf("SELECT %s, s.name AS student_name FROM payments p JOIN students s ON s.id = p.student_id WHERE p.id = $1", paymentColumns)
	var payment models.PaymentDetail
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find payment: %w", err)
	}
	return &payment, nil
}

// ExistsByInvoice reports whether an invoice reference is already recorded.
func (r *PaymentRepository) ExistsByInvoice(ctx context.Context, invoice string) (bool, error) {
	var exists int
	if err := r.db.GetContext(ctx, &exists, "SELECT 1 FROM payments WHERE invoice_number = $1 LIMIT 1", invoice); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check invoice: %w", err)
	}
	return true, nil
}

// Create inserts a new payment record.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = now
	const query = `INSERT INTO payments (id, student_id, amount, payment_date, category, status, period_key, payment_method, invoice_number, notes, created_at, updated_at)
        VALUES (:id, :student_id, :amount, :payment_date, :category, :status, :period_key, :payment_method, :invoice_number, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// UpdateStatus changes the settlement status of a payment.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id string, status models.PaymentStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE payments SET status = $2, updated_at = $3 WHERE id = $1`, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a payment.
func (r *PaymentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
