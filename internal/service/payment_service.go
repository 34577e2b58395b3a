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
	"github.com/noah-isme/sma-finance-api/pkg/logger"
)

type paymentRepository interface {
	List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.PaymentDetail, error)
	ExistsByInvoice(ctx context.Context, invoice string) (bool, error)
	Create(ctx context.Context, payment *models.Payment) error
	UpdateStatus(ctx context.Context, id string, status models.PaymentStatus) error
	Delete(ctx context.Context, id string) error
}

type studentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// RecordPaymentRequest is the payload for recording a payment.
type RecordPaymentRequest struct {
	StudentID     string                 `json:"student_id" validate:"required"`
	Amount        decimal.Decimal        `json:"amount"`
	PaymentDate   time.Time              `json:"payment_date"`
	Category      models.PaymentCategory `json:"category" validate:"omitempty,oneof=TUITION REGISTRATION BOOKS OTHER"`
	Status        models.PaymentStatus   `json:"status" validate:"omitempty,oneof=COMPLETED PENDING FAILED"`
	PeriodKey     string                 `json:"period_key"`
	PaymentMethod string                 `json:"payment_method" validate:"omitempty,max=32"`
	InvoiceNumber string                 `json:"invoice_number" validate:"omitempty,max=64"`
	Notes         string                 `json:"notes"`
}

// UpdatePaymentStatusRequest moves a payment to another settlement status.
type UpdatePaymentStatusRequest struct {
	Status models.PaymentStatus `json:"status" validate:"required,oneof=COMPLETED PENDING FAILED"`
}

// allowedTransitions lists the settlement moves a recorded payment may make.
var allowedTransitions = map[models.PaymentStatus][]models.PaymentStatus{
	models.PaymentStatusPending:   {models.PaymentStatusCompleted, models.PaymentStatusFailed},
	models.PaymentStatusCompleted: {models.PaymentStatusFailed},
}

// PaymentService handles payment use-cases.
type PaymentService struct {
	repo      paymentRepository
	students  studentLookup
	tuition   tuitionInvalidator
	validator *validator.Validate
	logger    *zap.Logger
	location  *time.Location
}

// NewPaymentService constructs the payment service. loc is the billing timezone used to derive
// period keys from payment dates.
func NewPaymentService(repo paymentRepository, students studentLookup, tuition tuitionInvalidator, validate *validator.Validate, log *zap.Logger, loc *time.Location) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if tuition == nil {
		tuition = noopInvalidator{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &PaymentService{repo: repo, students: students, tuition: tuition, validator: validate, logger: log, location: loc}
}

// List returns payments and pagination metadata.
func (s *PaymentService) List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentDetail, *models.Pagination, error) {
	payments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	if payments == nil {
		payments = []models.PaymentDetail{}
	}
	return payments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single payment.
func (s *PaymentService) Get(ctx context.Context, id string) (*models.PaymentDetail, error) {
	payment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	return payment, nil
}

// Record stores a new payment. Tuition payments without a period key are assigned the
// billing month their payment date falls in.
func (s *PaymentService) Record(ctx context.Context, req RecordPaymentRequest) (*models.Payment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	if req.PaymentDate.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "payment_date is required")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	payment := &models.Payment{
		ID:            uuid.NewString(),
		StudentID:     student.ID,
		Amount:        req.Amount,
		PaymentDate:   req.PaymentDate,
		Category:      req.Category,
		Status:        req.Status,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		Notes:         strings.TrimSpace(req.Notes),
	}
	if payment.Category == "" {
		payment.Category = models.PaymentCategoryTuition
	}
	if payment.Status == "" {
		payment.Status = models.PaymentStatusCompleted
	}
	if payment.PaymentMethod == "" {
		payment.PaymentMethod = "cash"
	}
	if key := strings.TrimSpace(req.PeriodKey); key != "" {
		payment.PeriodKey = &key
	} else if payment.Category == models.PaymentCategoryTuition {
		derived := billing.PeriodKeyFor(payment.PaymentDate, s.location)
		payment.PeriodKey = &derived
	}
	if err := billing.ValidatePayment(*payment); err != nil {
		return nil, translateBillingError(err)
	}
	if payment.PeriodKey != nil {
		normalized, _ := billing.NormalizePeriodKey(*payment.PeriodKey)
		payment.PeriodKey = &normalized
	}

	if invoice := strings.TrimSpace(req.InvoiceNumber); invoice != "" {
		exists, err := s.repo.ExistsByInvoice(ctx, invoice)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate invoice number")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "invoice number already recorded")
		}
		payment.InvoiceNumber = &invoice
	}

	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}
	logger.WithContext(ctx, s.logger).Info("payment recorded",
		zap.String("payment_id", payment.ID),
		zap.String("student_id", payment.StudentID),
		zap.String("category", string(payment.Category)),
		zap.String("status", string(payment.Status)))
	s.tuition.Invalidate(ctx)
	return payment, nil
}

// UpdateStatus settles or voids a payment.
func (s *PaymentService) UpdateStatus(ctx context.Context, id string, req UpdatePaymentStatusRequest) (*models.PaymentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	payment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.Status == req.Status {
		return payment, nil
	}
	if !canTransition(payment.Status, req.Status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidStatus, "cannot move payment from "+string(payment.Status)+" to "+string(req.Status))
	}
	if err := s.repo.UpdateStatus(ctx, id, req.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment status")
	}
	payment.Status = req.Status
	s.tuition.Invalidate(ctx)
	return payment, nil
}

// Delete removes a payment.
func (s *PaymentService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete payment")
	}
	s.tuition.Invalidate(ctx)
	return nil
}

func canTransition(from, to models.PaymentStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
