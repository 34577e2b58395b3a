package billing

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/noah-isme/sma-finance-api/internal/models"
)

// MatchStrategy decides how a payment is mapped onto a billing period.
type MatchStrategy string

const (
	// MatchByPeriodKey uses the explicit YYYY-MM key stored on the payment.
	// Payments without a key never satisfy a period.
	MatchByPeriodKey MatchStrategy = "period_key"
	// MatchByPaymentDate uses the calendar month of the payment date.
	MatchByPaymentDate MatchStrategy = "payment_date"
)

// ParseMatchStrategy resolves a configured strategy name. Empty selects MatchByPeriodKey.
func ParseMatchStrategy(raw string) (MatchStrategy, error) {
	switch MatchStrategy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", MatchByPeriodKey:
		return MatchByPeriodKey, nil
	case MatchByPaymentDate:
		return MatchByPaymentDate, nil
	}
	return "", fmt.Errorf("unknown match strategy %q", raw)
}

type ledgerKey struct {
	studentID string
	period    string
}

// Ledger indexes tuition payments by student and period so that every cell of a
// matrix can be matched without rescanning the payment collection.
type Ledger struct {
	strategy  MatchStrategy
	loc       *time.Location
	completed map[ledgerKey][]models.Payment
	pending   map[ledgerKey]int
}

// NewLedger builds a ledger view over payments using one matching strategy.
func NewLedger(payments []models.Payment, strategy MatchStrategy, loc *time.Location) *Ledger {
	if strategy == "" {
		strategy = MatchByPeriodKey
	}
	if loc == nil {
		loc = time.UTC
	}
	l := &Ledger{
		strategy:  strategy,
		loc:       loc,
		completed: make(map[ledgerKey][]models.Payment),
		pending:   make(map[ledgerKey]int),
	}
	for _, payment := range payments {
		if payment.Category != models.PaymentCategoryTuition {
			continue
		}
		period, ok := l.periodOf(payment)
		if !ok {
			continue
		}
		key := ledgerKey{studentID: payment.StudentID, period: period}
		switch payment.Status {
		case models.PaymentStatusCompleted:
			l.completed[key] = append(l.completed[key], payment)
		case models.PaymentStatusPending:
			l.pending[key]++
		}
	}
	for key, candidates := range l.completed {
		sortByPaymentDate(candidates)
		l.completed[key] = candidates
	}
	return l
}

// Strategy returns the matching strategy of the ledger.
func (l *Ledger) Strategy() MatchStrategy {
	return l.strategy
}

// Match returns the completed tuition payment satisfying the student's period, or nil.
// When several payments qualify the earliest one is returned together with an
// *AmbiguousMatchError describing the conflict.
func (l *Ledger) Match(studentID string, period BillingPeriod) (*models.Payment, error) {
	candidates := l.completed[ledgerKey{studentID: studentID, period: period.Label}]
	if len(candidates) == 0 {
		return nil, nil
	}
	chosen := candidates[0]
	if len(candidates) == 1 {
		return &chosen, nil
	}
	return &chosen, &AmbiguousMatchError{
		StudentID: studentID,
		PeriodKey: period.Label,
		PaymentIDs: lo.Map(candidates, func(p models.Payment, _ int) string {
			return p.ID
		}),
		ChosenID: chosen.ID,
	}
}

// HasPending reports whether an unsettled tuition payment exists for the student's period.
func (l *Ledger) HasPending(studentID string, period BillingPeriod) bool {
	return l.pending[ledgerKey{studentID: studentID, period: period.Label}] > 0
}

func (l *Ledger) periodOf(payment models.Payment) (string, bool) {
	if l.strategy == MatchByPaymentDate {
		if payment.PaymentDate.IsZero() {
			return "", false
		}
		return PeriodKeyFor(payment.PaymentDate, l.loc), true
	}
	if payment.PeriodKey == nil {
		return "", false
	}
	key, err := NormalizePeriodKey(*payment.PeriodKey)
	if err != nil {
		return "", false
	}
	return key, true
}

// MatchPayment finds the completed tuition payment of studentID for period using the
// explicit period key strategy.
func MatchPayment(payments []models.Payment, studentID string, period BillingPeriod) (*models.Payment, error) {
	return MatchPaymentWith(payments, studentID, period, MatchByPeriodKey)
}

// MatchPaymentWith is MatchPayment with an explicit strategy.
func MatchPaymentWith(payments []models.Payment, studentID string, period BillingPeriod, strategy MatchStrategy) (*models.Payment, error) {
	owned := lo.Filter(payments, func(p models.Payment, _ int) bool {
		return p.StudentID == studentID
	})
	return NewLedger(owned, strategy, period.location()).Match(studentID, period)
}

func sortByPaymentDate(payments []models.Payment) {
	sort.SliceStable(payments, func(i, j int) bool {
		if payments[i].PaymentDate.Equal(payments[j].PaymentDate) {
			return payments[i].ID < payments[j].ID
		}
		return payments[i].PaymentDate.Before(payments[j].PaymentDate)
	})
}
