package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-finance-api/internal/billing"
	"github.com/noah-isme/sma-finance-api/internal/models"
	appErrors "github.com/noah-isme/sma-finance-api/pkg/errors"
)

const enrollmentDateLayout = "2006-01-02"

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByNIS(ctx context.Context, nis string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
}

type tuitionInvalidator interface {
	Invalidate(ctx context.Context)
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context) {}

// StudentRequest is the payload for creating or replacing a student.
type StudentRequest struct {
	NIS            *string              `json:"nis" validate:"omitempty,max=32"`
	Name           string               `json:"name" validate:"required,max=255"`
	ClassYear      string               `json:"class_year" validate:"max=32"`
	Email          string               `json:"email" validate:"omitempty,email"`
	Phone          string               `json:"phone" validate:"max=64"`
	Address        string               `json:"address"`
	EnrollmentDate string               `json:"enrollment_date" validate:"required,datetime=2006-01-02"`
	BaseFee        decimal.Decimal      `json:"base_fee"`
	BillingDueDay  int                  `json:"billing_due_day" validate:"omitempty,min=1,max=28"`
	Status         models.StudentStatus `json:"status" validate:"omitempty,oneof=ACTIVE GRADUATED DROPOUT ON_LEAVE"`
}

// StudentService handles student use-cases.
type StudentService struct {
	repo          studentRepository
	tuition       tuitionInvalidator
	validator     *validator.Validate
	logger        *zap.Logger
	defaultDueDay int
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, tuition tuitionInvalidator, validate *validator.Validate, logger *zap.Logger, defaultDueDay int) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tuition == nil {
		tuition = noopInvalidator{}
	}
	if defaultDueDay < billing.MinDueDay || defaultDueDay > billing.MaxDueDay {
		defaultDueDay = models.DefaultBillingDueDay
	}
	return &StudentService{repo: repo, tuition: tuition, validator: validate, logger: logger, defaultDueDay: defaultDueDay}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a new student.
func (s *StudentService) Create(ctx context.Context, req StudentRequest) (*models.Student, error) {
	student, err := s.buildStudent(req)
	if err != nil {
		return nil, err
	}
	student.ID = uuid.NewString()
	if err := s.checkStudent(ctx, student, ""); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.tuition.Invalidate(ctx)
	return student, nil
}

// Update replaces an existing student record.
func (s *StudentService) Update(ctx context.Context, id string, req StudentRequest) (*models.Student, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	student, err := s.buildStudent(req)
	if err != nil {
		return nil, err
	}
	student.ID = existing.ID
	student.CreatedAt = existing.CreatedAt
	if req.Status == "" {
		student.Status = existing.Status
	}
	if req.BillingDueDay == 0 {
		student.BillingDueDay = existing.BillingDueDay
	}
	if err := s.checkStudent(ctx, student, id); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	s.tuition.Invalidate(ctx)
	return student, nil
}

// Delete removes a student together with their payments.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	s.tuition.Invalidate(ctx)
	return nil
}

func (s *StudentService) buildStudent(req StudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	enrolled, err := time.Parse(enrollmentDateLayout, req.EnrollmentDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment_date")
	}
	student := &models.Student{
		NIS:            normalizeNIS(req.NIS),
		Name:           strings.TrimSpace(req.Name),
		ClassYear:      strings.TrimSpace(req.ClassYear),
		Email:          strings.TrimSpace(req.Email),
		Phone:          strings.TrimSpace(req.Phone),
		Address:        strings.TrimSpace(req.Address),
		EnrollmentDate: enrolled,
		BaseFee:        req.BaseFee,
		BillingDueDay:  req.BillingDueDay,
		Status:         req.Status,
	}
	if student.BillingDueDay == 0 {
		student.BillingDueDay = s.defaultDueDay
	}
	if student.Status == "" {
		student.Status = models.StudentStatusActive
	}
	return student, nil
}

func (s *StudentService) checkStudent(ctx context.Context, student *models.Student, excludeID string) error {
	if err := billing.ValidateStudent(*student); err != nil {
		return translateBillingError(err)
	}
	if student.NIS == nil {
		return nil
	}
	exists, err := s.repo.ExistsByNIS(ctx, *student.NIS, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate nis")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "nis already used")
	}
	return nil
}

func normalizeNIS(nis *string) *string {
	if nis == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*nis)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
