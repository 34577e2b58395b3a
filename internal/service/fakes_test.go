package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-finance-api/internal/models"
	appErrors "github.com/noah-isme/sma-finance-api/pkg/errors"
)

type fakeStudentRepo struct {
	students    map[string]models.Student
	nisOwner    map[string]string
	lastFilter  models.StudentFilter
	listCalls   int
	billingHits int
	err         error
}

func newFakeStudentRepo(students ...models.Student) *fakeStudentRepo {
	repo := &fakeStudentRepo{students: map[string]models.Student{}, nisOwner: map[string]string{}}
	for _, s := range students {
		repo.students[s.ID] = s
		if s.NIS != nil {
			repo.nisOwner[*s.NIS] = s.ID
		}
	}
	return repo
}

func (f *fakeStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	f.lastFilter = filter
	f.listCalls++
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.sorted(), len(f.students), nil
}

func (f *fakeStudentRepo) ListEnrolledBefore(ctx context.Context, cutoff time.Time) ([]models.Student, error) {
	f.billingHits++
	if f.err != nil {
		return nil, f.err
	}
	var result []models.Student
	for _, s := range f.sorted() {
		if s.EnrollmentDate.Before(cutoff) {
			result = append(result, s)
		}
	}
	return result, nil
}

func (f *fakeStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (f *fakeStudentRepo) ExistsByNIS(ctx context.Context, nis string, excludeID string) (bool, error) {
	owner, ok := f.nisOwner[nis]
	return ok && owner != excludeID, nil
}

func (f *fakeStudentRepo) Create(ctx context.Context, student *models.Student) error {
	student.CreatedAt = time.Now().UTC()
	student.UpdatedAt = student.CreatedAt
	f.students[student.ID] = *student
	return nil
}

func (f *fakeStudentRepo) Update(ctx context.Context, student *models.Student) error {
	f.students[student.ID] = *student
	return nil
}

func (f *fakeStudentRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.students[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.students, id)
	return nil
}

func (f *fakeStudentRepo) sorted() []models.Student {
	result := make([]models.Student, 0, len(f.students))
	for _, s := range f.students {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

type fakePaymentRepo struct {
	payments  map[string]models.Payment
	invoices  map[string]bool
	yearCalls int
}

func newFakePaymentRepo(payments ...models.Payment) *fakePaymentRepo {
	repo := &fakePaymentRepo{payments: map[string]models.Payment{}, invoices: map[string]bool{}}
	for _, p := range payments {
		repo.payments[p.ID] = p
	}
	return repo
}

func (f *fakePaymentRepo) List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentDetail, int, error) {
	var result []models.PaymentDetail
	for _, p := range f.payments {
		if filter.StudentID != "" && p.StudentID != filter.StudentID {
			continue
		}
		result = append(result, models.PaymentDetail{Payment: p})
	}
	return result, len(result), nil
}

func (f *fakePaymentRepo) ListTuitionForYear(ctx context.Context, year int) ([]models.Payment, error) {
	f.yearCalls++
	prefix := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).Format("2006") + "-"
	var result []models.Payment
	for _, p := range f.payments {
		if p.Category != models.PaymentCategoryTuition {
			continue
		}
		if (p.PeriodKey != nil && strings.HasPrefix(*p.PeriodKey, prefix)) || p.PaymentDate.Year() == year {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (f *fakePaymentRepo) FindByID(ctx context.Context, id string) (*models.PaymentDetail, error) {
	p, ok := f.payments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.PaymentDetail{Payment: p}, nil
}

func (f *fakePaymentRepo) ExistsByInvoice(ctx context.Context, invoice string) (bool, error) {
	return f.invoices[invoice], nil
}

func (f *fakePaymentRepo) Create(ctx context.Context, payment *models.Payment) error {
	f.payments[payment.ID] = *payment
	if payment.InvoiceNumber != nil {
		f.invoices[*payment.InvoiceNumber] = true
	}
	return nil
}

func (f *fakePaymentRepo) UpdateStatus(ctx context.Context, id string, status models.PaymentStatus) error {
	p, ok := f.payments[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.Status = status
	f.payments[id] = p
	return nil
}

func (f *fakePaymentRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.payments[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.payments, id)
	return nil
}

type stubCacheRepo struct {
	mu       sync.Mutex
	store    map[string][]byte
	patterns []string
}

func (s *stubCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	return nil
}

func (s *stubCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns = append(s.patterns, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range s.store {
		if strings.HasPrefix(key, prefix) {
			delete(s.store, key)
		}
	}
	return nil
}

type recordingInvalidator struct {
	calls int
}

func (r *recordingInvalidator) Invalidate(context.Context) {
	r.calls++
}

type recordingWarmer struct {
	years []int
}

func (r *recordingWarmer) ScheduleWarm(year int) {
	r.years = append(r.years, year)
}

func strPtr(s string) *string {
	return &s
}

func activeStudent(id, name string) models.Student {
	return models.Student{
		ID:             id,
		Name:           name,
		EnrollmentDate: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
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
