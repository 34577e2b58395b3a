package billing

import (
	"time"

	"github.com/noah-isme/sma-finance-api/internal/models"
)

// Status is the resolved state of one (student, period) obligation.
type Status string

// Possible cell statuses. PENDING refines NOT_YET_DUE when an unsettled payment exists.
const (
	StatusNotYetDue Status = "NOT_YET_DUE"
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusOverdue   Status = "OVERDUE"
)

// ResolveStatus evaluates a period for a student as of the given instant. It never reads
// the clock. Periods that are not applicable (before enrollment) are never overdue.
func ResolveStatus(period BillingPeriod, asOf time.Time, student models.Student, matched *models.Payment) (Status, error) {
	if err := ValidateStudent(student); err != nil {
		return "", err
	}
	if matched != nil && matched.StudentID != student.ID {
		return "", &ValidationError{
			StudentID: student.ID,
			PaymentID: matched.ID,
			Field:     "student_id",
			Reason:    "payment belongs to another student",
		}
	}
	if !period.Applicable {
		return StatusNotYetDue, nil
	}
	if matched != nil {
		return StatusPaid, nil
	}
	if asOf.Before(period.OverdueFrom()) {
		return StatusNotYetDue, nil
	}
	return StatusOverdue, nil
}
