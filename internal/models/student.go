package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StudentStatus describes where a student is in their school lifecycle.
type StudentStatus string

// Possible student statuses.
const (
	StudentStatusActive    StudentStatus = "ACTIVE"
	StudentStatusGraduated StudentStatus = "GRADUATED"
	StudentStatusDropout   StudentStatus = "DROPOUT"
	StudentStatusOnLeave   StudentStatus = "ON_LEAVE"
)

// Valid reports whether the status is one of the known values.
func (s StudentStatus) Valid() bool {
	switch s {
	case StudentStatusActive, StudentStatusGraduated, StudentStatusDropout, StudentStatusOnLeave:
		return true
	}
	return false
}

// DefaultBillingDueDay is used when a student is registered without an explicit due day.
const DefaultBillingDueDay = 10

// Student represents a learner together with their tuition billing configuration.
type Student struct {
	ID             string          `db:"id" json:"id"`
	NIS            *string         `db:"nis" json:"nis,omitempty"`
	Name           string          `db:"name" json:"name"`
	ClassYear      string          `db:"class_year" json:"class_year"`
	Email          string          `db:"email" json:"email"`
	Phone          string          `db:"phone" json:"phone"`
	Address        string          `db:"address" json:"address"`
	EnrollmentDate time.Time       `db:"enrollment_date" json:"enrollment_date"`
	BaseFee        decimal.Decimal `db:"base_fee" json:"base_fee"`
	BillingDueDay  int             `db:"billing_due_day" json:"billing_due_day"`
	Status         StudentStatus   `db:"status" json:"status"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// IsActive reports whether the student counts towards current collection figures.
func (s Student) IsActive() bool {
	return s.Status == StudentStatusActive
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Status    StudentStatus
	ClassYear string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
