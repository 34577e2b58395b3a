package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentCategory classifies what a payment was made for.
type PaymentCategory string

// Supported payment categories.
const (
	PaymentCategoryTuition      PaymentCategory = "TUITION"
	PaymentCategoryRegistration PaymentCategory = "REGISTRATION"
	PaymentCategoryBooks        PaymentCategory = "BOOKS"
	PaymentCategoryOther        PaymentCategory = "OTHER"
)

// PaymentStatus is the settlement state of a payment.
type PaymentStatus string

// Supported payment statuses.
const (
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// Payment is a recorded transaction against one student.
type Payment struct {
	ID            string          `db:"id" json:"id"`
	StudentID     string          `db:"student_id" json:"student_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	PaymentDate   time.Time       `db:"payment_date" json:"payment_date"`
	Category      PaymentCategory `db:"category" json:"category"`
	Status        PaymentStatus   `db:"status" json:"status"`
	PeriodKey     *string         `db:"period_key" json:"period_key,omitempty"`
	PaymentMethod string          `db:"payment_method" json:"payment_method"`
	InvoiceNumber *string         `db:"invoice_number" json:"invoice_number,omitempty"`
	Notes         string          `db:"notes" json:"notes"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	StudentID string
	Year      int
	Category  PaymentCategory
	Status    PaymentStatus
	Page      int
	PageSize  int
}

// PaymentDetail enriches a payment with the owning student's name.
type PaymentDetail struct {
	Payment
	StudentName string `db:"student_name" json:"student_name"`
}
