package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-finance-api/internal/models"
	appErrors "github.com/noah-isme/sma-finance-api/pkg/errors"
)

func validStudentRequest() StudentRequest {
	return StudentRequest{
		NIS:            strPtr(" 2001 "),
		Name:           " Alya Putri ",
		ClassYear:      "X-IPA",
		Email:          "alya@example.com",
		EnrollmentDate: "2024-07-15",
		BaseFee:        decimal.NewFromInt(750000),
	}
}

func TestStudentServiceCreateAppliesDefaults(t *testing.T) {
	repo := newFakeStudentRepo()
	invalidator := &recordingInvalidator{}
	svc := NewStudentService(repo, invalidator, nil, zap.NewNop(), 5)

	student, err := svc.Create(context.Background(), validStudentRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, student.ID)
	assert.Equal(t, "Alya Putri", student.Name)
	require.NotNil(t, student.NIS)
	assert.Equal(t, "2001", *student.NIS)
	assert.Equal(t, 5, student.BillingDueDay)
	assert.Equal(t, models.StudentStatusActive, student.Status)
	assert.Equal(t, 2024, student.EnrollmentDate.Year())
	assert.Equal(t, 1, invalidator.calls)
	assert.Contains(t, repo.students, student.ID)
}

func TestStudentServiceCreateValidation(t *testing.T) {
	svc := NewStudentService(newFakeStudentRepo(), nil, nil, zap.NewNop(), 10)

	cases := map[string]func(r *StudentRequest){
		"missing name":      func(r *StudentRequest) { r.Name = "" },
		"bad enrollment":    func(r *StudentRequest) { r.EnrollmentDate = "15/07/2024" },
		"due day too large": func(r *StudentRequest) { r.BillingDueDay = 31 },
		"negative fee":      func(r *StudentRequest) { r.BaseFee = decimal.NewFromInt(-1) },
		"unknown status":    func(r *StudentRequest) { r.Status = "EXPELLED" },
		"invalid email":     func(r *StudentRequest) { r.Email = "not-an-email" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validStudentRequest()
			mutate(&req)
			_, err := svc.Create(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}
}

func TestStudentServiceCreateDuplicateNIS(t *testing.T) {
	existing := activeStudent("s-1", "Budi")
	existing.NIS = strPtr("2001")
	svc := NewStudentService(newFakeStudentRepo(existing), nil, nil, zap.NewNop(), 10)

	_, err := svc.Create(context.Background(), validStudentRequest())
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestStudentServiceUpdateKeepsUnsetFields(t *testing.T) {
	existing := activeStudent("s-1", "Budi")
	existing.NIS = strPtr("2001")
	existing.BillingDueDay = 15
	existing.Status = models.StudentStatusOnLeave
	repo := newFakeStudentRepo(existing)
	invalidator := &recordingInvalidator{}
	svc := NewStudentService(repo, invalidator, nil, zap.NewNop(), 10)

	updated, err := svc.Update(context.Background(), "s-1", validStudentRequest())
	require.NoError(t, err)
	assert.Equal(t, "s-1", updated.ID)
	assert.Equal(t, 15, updated.BillingDueDay)
	assert.Equal(t, models.StudentStatusOnLeave, updated.Status)
	assert.True(t, decimal.NewFromInt(750000).Equal(repo.students["s-1"].BaseFee))
	assert.Equal(t, 1, invalidator.calls)

	_, err = svc.Update(context.Background(), "missing", validStudentRequest())
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestStudentServiceDelete(t *testing.T) {
	repo := newFakeStudentRepo(activeStudent("s-1", "Budi"))
	invalidator := &recordingInvalidator{}
	svc := NewStudentService(repo, invalidator, nil, zap.NewNop(), 10)

	require.NoError(t, svc.Delete(context.Background(), "s-1"))
	assert.NotContains(t, repo.students, "s-1")
	assert.Equal(t, 1, invalidator.calls)

	err := svc.Delete(context.Background(), "s-1")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.Equal(t, 1, invalidator.calls)
}

func TestStudentServiceList(t *testing.T) {
	repo := newFakeStudentRepo(activeStudent("s-1", "Budi"), activeStudent("s-2", "Alya"))
	svc := NewStudentService(repo, nil, nil, zap.NewNop(), 10)

	students, pagination, err := svc.List(context.Background(), models.StudentFilter{Search: "al", PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, students, 2)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 2, pagination.TotalCount)
	assert.Equal(t, "al", repo.lastFilter.Search)

	_, _, err = svc.List(context.Background(), models.StudentFilter{Status: "UNKNOWN"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
