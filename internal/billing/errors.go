package billing

import (
	"fmt"
	"strings"
)

// ValidationError reports a malformed student, payment or query parameter.
type ValidationError struct {
	StudentID string `json:"student_id,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
	Field     string `json:"field"`
	Reason    string `json:"reason"`
}

func (e *ValidationError) Error() string {
	switch {
	case e.PaymentID != "":
		return fmt.Sprintf("payment %s: invalid %s: %s", e.PaymentID, e.Field, e.Reason)
	case e.StudentID != "":
		return fmt.Sprintf("student %s: invalid %s: %s", e.StudentID, e.Field, e.Reason)
	default:
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
}

// AmbiguousMatchError is a warning raised when several completed tuition payments
// satisfy the same student and period. ChosenID is the payment that was kept.
type AmbiguousMatchError struct {
	StudentID  string   `json:"student_id"`
	PeriodKey  string   `json:"period_key"`
	PaymentIDs []string `json:"payment_ids"`
	ChosenID   string   `json:"chosen_id"`
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("student %s period %s: %d completed tuition payments match (%s), using %s",
		e.StudentID, e.PeriodKey, len(e.PaymentIDs), strings.Join(e.PaymentIDs, ", "), e.ChosenID)
}
