package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-finance-api/internal/models"
)

func TestMatchPayment_FiltersCategoryAndStatus(t *testing.T) {
	periods, err := BuildPeriods(2024, newStudent("stu-1", "Ani"), time.UTC)
	require.NoError(t, err)
	jan := periods[0]

	registration := tuitionPayment("pay-1", "stu-1", "2024-01", date(2024, time.January, 2))
	registration.Category = models.PaymentCategoryRegistration
	failed := tuitionPayment("pay-2", "stu-1", "2024-01", date(2024, time.January, 3))
	failed.Status = models.PaymentStatusFailed
	otherStudent := tuitionPayment("pay-3", "stu-2", "2024-01", date(2024, time.January, 4))
	otherPeriod := tuitionPayment("pay-4", "stu-1", "2024-02", date(2024, time.January, 5))
	noKey := tuitionPayment("pay-5", "stu-1", "", date(2024, time.January, 6))
	noKey.PeriodKey = nil

	payments := []models.Payment{registration, failed, otherStudent, otherPeriod, noKey}
	matched, err := MatchPayment(payments, "stu-1", jan)
	assert.NoError(t, err)
	assert.Nil(t, matched)

	valid := tuitionPayment("pay-6", "stu-1", "2024-01", date(2024, time.February, 20))
	matched, err = MatchPayment(append(payments, valid), "stu-1", jan)
	assert.NoError(t, err)
	require.NotNil(t, matched)
	assert.Equal(t, "pay-6", matched.ID)
}

func TestMatchPayment_AmbiguousPicksEarliest(t *testing.T) {
	periods, err := BuildPeriods(2024, newStudent("stu-1", "Ani"), time.UTC)
	require.NoError(t, err)

	late := tuitionPayment("pay-b", "stu-1", "2024-01", date(2024, time.January, 9))
	early := tuitionPayment("pay-a", "stu-1", "2024-01", date(2024, time.January, 2))

	matched, err := MatchPayment([]models.Payment{late, early}, "stu-1", periods[0])
	require.NotNil(t, matched)
	assert.Equal(t, "pay-a", matched.ID)

	var ambiguous *AmbiguousMatchError
	require.ErrorAs(t, err, &ambiguous)
	assert.Equal(t, "stu-1", ambiguous.StudentID)
	assert.Equal(t, "2024-01", ambiguous.PeriodKey)
	assert.Equal(t, []string{"pay-a", "pay-b"}, ambiguous.PaymentIDs)
	assert.Equal(t, "pay-a", ambiguous.ChosenID)
}

func TestMatchPaymentWith_PaymentDateStrategy(t *testing.T) {
	wib := time.FixedZone("WIB", 7*3600)
	periods, err := BuildPeriods(2024, newStudent("stu-1", "Ani"), wib)
	require.NoError(t, err)

	// 20:00 UTC on Jan 31 is already Feb 1 in WIB.
	payment := tuitionPayment("pay-1", "stu-1", "2024-01", time.Date(2024, time.January, 31, 20, 0, 0, 0, time.UTC))

	matched, err := MatchPaymentWith([]models.Payment{payment}, "stu-1", periods[1], MatchByPaymentDate)
	require.NoError(t, err)
	require.NotNil(t, matched)

	matched, err = MatchPaymentWith([]models.Payment{payment}, "stu-1", periods[0], MatchByPaymentDate)
	require.NoError(t, err)
	assert.Nil(t, matched)
}

func TestLedger_HasPending(t *testing.T) {
	periods, err := BuildPeriods(2024, newStudent("stu-1", "Ani"), time.UTC)
	require.NoError(t, err)
	pending := tuitionPayment("pay-1", "stu-1", "2024-03", date(2024, time.March, 2))
	pending.Status = models.PaymentStatusPending

	ledger := NewLedger([]models.Payment{pending}, MatchByPeriodKey, time.UTC)
	assert.True(t, ledger.HasPending("stu-1", periods[2]))
	assert.False(t, ledger.HasPending("stu-1", periods[1]))
	matched, err := ledger.Match("stu-1", periods[2])
	assert.NoError(t, err)
	assert.Nil(t, matched)
}

func TestParseMatchStrategy(t *testing.T) {
	strategy, err := ParseMatchStrategy("")
	require.NoError(t, err)
	assert.Equal(t, MatchByPeriodKey, strategy)

	strategy, err = ParseMatchStrategy("PAYMENT_DATE")
	require.NoError(t, err)
	assert.Equal(t, MatchByPaymentDate, strategy)

	_, err = ParseMatchStrategy("mixed")
	assert.Error(t, err)
}
