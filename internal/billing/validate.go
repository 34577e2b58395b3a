package billing

import (
	"fmt"

	"github.com/noah-isme/sma-finance-api/internal/models"
)

// Due days stop at 28 so every month of every year contains the due day.
const (
	MinDueDay = 1
	MaxDueDay = 28
)

// ValidateStudent checks the billing configuration of a student.
func ValidateStudent(s models.Student) error {
	if s.ID == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if s.BillingDueDay < MinDueDay || s.BillingDueDay > MaxDueDay {
		return &ValidationError{
			StudentID: s.ID,
			Field:     "billing_due_day",
			Reason:    fmt.Sprintf("must be between %d and %d, got %d", MinDueDay, MaxDueDay, s.BillingDueDay),
		}
	}
	if s.BaseFee.IsNegative() {
		return &ValidationError{StudentID: s.ID, Field: "base_fee", Reason: "must not be negative"}
	}
	if s.EnrollmentDate.IsZero() {
		return &ValidationError{StudentID: s.ID, Field: "enrollment_date", Reason: "is required"}
	}
	if !s.Status.Valid() {
		return &ValidationError{StudentID: s.ID, Field: "status", Reason: fmt.Sprintf("unknown status %q", s.Status)}
	}
	return nil
}

// ValidatePayment checks the fields the ledger relies on.
func ValidatePayment(p models.Payment) error {
	if p.ID == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if p.StudentID == "" {
		return &ValidationError{PaymentID: p.ID, Field: "student_id", Reason: "is required"}
	}
	if p.Amount.IsNegative() {
		return &ValidationError{PaymentID: p.ID, Field: "amount", Reason: "must not be negative"}
	}
	if p.PeriodKey != nil {
		if _, _, err := ParsePeriodKey(*p.PeriodKey); err != nil {
			return &ValidationError{PaymentID: p.ID, Field: "period_key", Reason: err.Error()}
		}
	}
	return nil
}
