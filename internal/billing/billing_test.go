package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-finance-api/internal/models"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func strPtr(s string) *string {
	return &s
}

func newStudent(id, name string) models.Student {
	return models.Student{
		ID:             id,
		Name:           name,
		EnrollmentDate: date(2024, time.January, 1),
		BaseFee:        decimal.NewFromInt(500000),
		BillingDueDay:  10,
		Status:         models.StudentStatusActive,
	}
}

func tuitionPayment(id, studentID, period string, paidAt time.Time) models.Payment {
	return models.Payment{
		ID:          id,
		StudentID:   studentID,
		Amount:      decimal.NewFromInt(500000),
		PaymentDate: paidAt,
		Category:    models.PaymentCategoryTuition,
		Status:      models.PaymentStatusCompleted,
		PeriodKey:   strPtr(period),
	}
}
