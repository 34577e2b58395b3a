package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-finance-api/internal/billing"
	"github.com/noah-isme/sma-finance-api/internal/dto"
	"github.com/noah-isme/sma-finance-api/internal/models"
	appErrors "github.com/noah-isme/sma-finance-api/pkg/errors"
	"github.com/noah-isme/sma-finance-api/pkg/logger"
)

const (
	minMatrixYear = 1900
	maxMatrixYear = 9999
)

type billingStudentSource interface {
	ListEnrolledBefore(ctx context.Context, cutoff time.Time) ([]models.Student, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type billingPaymentSource interface {
	ListTuitionForYear(ctx context.Context, year int) ([]models.Payment, error)
}

type matrixWarmer interface {
	ScheduleWarm(year int)
}

// TuitionServiceConfig tunes matrix construction and caching.
type TuitionServiceConfig struct {
	Strategy billing.MatchStrategy
	Location *time.Location
	CacheTTL time.Duration
}

// TuitionQuery selects a yearly matrix evaluated at AsOf. Search narrows rows by name or NIS.
type TuitionQuery struct {
	Year   int
	AsOf   time.Time
	Search string
}

// TuitionService serves tuition matrices, period statistics and student cards.
type TuitionService struct {
	students   billingStudentSource
	payments   billingPaymentSource
	cache      *CacheService
	metrics    *MetricsService
	logger     *zap.Logger
	cfg        TuitionServiceConfig
	now        func() time.Time
	warmer     matrixWarmer
	generation atomic.Uint64
}

// NewTuitionService constructs a TuitionService.
func NewTuitionService(students billingStudentSource, payments billingPaymentSource, cache *CacheService, metrics *MetricsService, cfg TuitionServiceConfig, log *zap.Logger) *TuitionService {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Strategy == "" {
		cfg.Strategy = billing.MatchByPeriodKey
	}
	return &TuitionService{
		students: students,
		payments: payments,
		cache:    cache,
		metrics:  metrics,
		logger:   log,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetWarmer registers the component that rebuilds cached matrices after invalidation.
func (s *TuitionService) SetWarmer(w matrixWarmer) {
	s.warmer = w
}

// Location returns the billing timezone.
func (s *TuitionService) Location() *time.Location {
	return s.cfg.Location
}

// Matrix returns the status matrix of a year and whether it was served from cache.
func (s *TuitionService) Matrix(ctx context.Context, q TuitionQuery) (*billing.Matrix, bool, error) {
	if err := s.validateQuery(q); err != nil {
		return nil, false, err
	}
	matrix, hit, err := s.loadMatrix(ctx, q.Year, q.AsOf)
	if err != nil {
		return nil, false, err
	}
	return filterRows(matrix, q.Search), hit, nil
}

// Stats aggregates the month (1-12) of the queried year.
func (s *TuitionService) Stats(ctx context.Context, q TuitionQuery, month int) (*dto.TuitionStatsResponse, bool, error) {
	if err := s.validateQuery(q); err != nil {
		return nil, false, err
	}
	if month < 1 || month > billing.MonthsPerYear {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "month must be between 1 and 12")
	}
	matrix, hit, err := s.loadMatrix(ctx, q.Year, q.AsOf)
	if err != nil {
		return nil, false, err
	}
	stats, err := billing.Aggregate(matrix, billing.PeriodLabel(q.Year, month-1))
	if err != nil {
		return nil, false, translateBillingError(err)
	}
	return &dto.TuitionStatsResponse{Stats: stats, Year: q.Year, AsOf: q.AsOf, Strategy: matrix.Strategy}, hit, nil
}

// StudentCard returns one student's row of the queried year.
func (s *TuitionService) StudentCard(ctx context.Context, studentID string, q TuitionQuery) (*dto.StudentTuitionCard, bool, error) {
	if err := s.validateQuery(q); err != nil {
		return nil, false, err
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	matrix, hit, err := s.loadMatrix(ctx, q.Year, q.AsOf)
	if err != nil {
		return nil, false, err
	}

	card := &dto.StudentTuitionCard{Student: *student, Year: q.Year, AsOf: q.AsOf, Cells: []billing.StatusCell{}}
	if row, ok := matrix.Row(studentID); ok {
		card.Student = row.Student
		card.Cells = row.Cells
		card.Summary = row.Summary()
		return card, hit, nil
	}
	for _, verr := range matrix.Errors {
		if verr.StudentID == studentID {
			return nil, false, translateBillingError(verr)
		}
	}
	// Enrolled after the queried year: nothing is billable yet.
	card.Summary = billing.MatrixRow{Student: *student}.Summary()
	return card, hit, nil
}

// Invalidate drops every cached tuition view and schedules a rebuild of the current year.
func (s *TuitionService) Invalidate(ctx context.Context) {
	s.generation.Add(1)
	if err := s.cache.Invalidate(ctx, TuitionCacheNamespace); err != nil {
		logger.WithContext(ctx, s.logger).Warn("tuition cache invalidation failed", zap.Error(err))
	}
	if s.warmer != nil {
		s.warmer.ScheduleWarm(s.now().In(s.cfg.Location).Year())
	}
}

// Warm rebuilds and caches the matrix of year as of now. For the current year it also
// publishes the current period's figures to the metrics gauges.
func (s *TuitionService) Warm(ctx context.Context, year int) (*dto.WarmResult, error) {
	now := s.now()
	matrix, err := s.buildAndStore(ctx, year, now)
	if err != nil {
		return nil, err
	}
	result := &dto.WarmResult{Year: year, Rows: len(matrix.Rows), Errors: len(matrix.Errors), Warnings: len(matrix.Warnings)}

	local := now.In(s.cfg.Location)
	if local.Year() == year {
		stats, err := billing.Aggregate(matrix, billing.PeriodKeyFor(now, s.cfg.Location))
		if err != nil {
			return nil, translateBillingError(err)
		}
		s.metrics.SetTuitionStats(stats)
		result.Current = &stats
	}
	return result, nil
}

func (s *TuitionService) validateQuery(q TuitionQuery) error {
	if q.Year < minMatrixYear || q.Year > maxMatrixYear {
		return appErrors.Clone(appErrors.ErrValidation, "year is out of range")
	}
	if q.AsOf.IsZero() {
		return appErrors.Clone(appErrors.ErrValidation, "as_of is required")
	}
	return nil
}

func (s *TuitionService) cacheKey(year int, asOf time.Time) string {
	// Status only changes at midnight in the billing timezone, so one entry serves a whole day.
	day := asOf.In(s.cfg.Location).Format("2006-01-02")
	return CacheKey(TuitionCacheNamespace, "g"+strconv.FormatUint(s.generation.Load(), 10), "matrix", year, s.cfg.Strategy, day)
}

func (s *TuitionService) loadMatrix(ctx context.Context, year int, asOf time.Time) (*billing.Matrix, bool, error) {
	var cached billing.Matrix
	if s.cache.Get(ctx, s.cacheKey(year, asOf), &cached) {
		cached.AsOf = asOf
		return &cached, true, nil
	}
	matrix, err := s.buildAndStore(ctx, year, asOf)
	if err != nil {
		return nil, false, err
	}
	return matrix, false, nil
}

func (s *TuitionService) buildAndStore(ctx context.Context, year int, asOf time.Time) (*billing.Matrix, error) {
	key := s.cacheKey(year, asOf)
	start := time.Now()

	cutoff := time.Date(year+1, time.January, 1, 0, 0, 0, 0, s.cfg.Location)
	students, err := s.students.ListEnrolledBefore(ctx, cutoff)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	payments, err := s.payments.ListTuitionForYear(ctx, year)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payments")
	}

	matrix := billing.BuildMatrix(students, payments, year, asOf, billing.MatrixOptions{
		Strategy: s.cfg.Strategy,
		Location: s.cfg.Location,
	})
	s.metrics.ObserveMatrixBuild(matrix, time.Since(start))
	s.logAnomalies(ctx, matrix)

	_ = s.cache.Set(ctx, key, matrix, s.cfg.CacheTTL)
	return matrix, nil
}

func (s *TuitionService) logAnomalies(ctx context.Context, matrix *billing.Matrix) {
	log := logger.WithContext(ctx, s.logger)
	for _, verr := range matrix.Errors {
		log.Warn("student skipped from tuition matrix",
			zap.Int("year", matrix.Year),
			zap.String("student_id", verr.StudentID),
			zap.String("field", verr.Field),
			zap.String("reason", verr.Reason))
	}
	for _, warning := range matrix.Warnings {
		log.Warn("ambiguous tuition payment match",
			zap.String("student_id", warning.StudentID),
			zap.String("period", warning.PeriodKey),
			zap.Strings("payment_ids", warning.PaymentIDs),
			zap.String("chosen_id", warning.ChosenID))
	}
}

func filterRows(matrix *billing.Matrix, search string) *billing.Matrix {
	needle := strings.ToLower(strings.TrimSpace(search))
	if needle == "" || matrix == nil {
		return matrix
	}
	filtered := *matrix
	filtered.Rows = make([]billing.MatrixRow, 0, len(matrix.Rows))
	for _, row := range matrix.Rows {
		nis := ""
		if row.Student.NIS != nil {
			nis = strings.ToLower(*row.Student.NIS)
		}
		if strings.Contains(strings.ToLower(row.Student.Name), needle) || strings.Contains(nis, needle) {
			filtered.Rows = append(filtered.Rows, row)
		}
	}
	return &filtered
}

// translateBillingError maps core validation failures onto the HTTP error model.
func translateBillingError(err error) error {
	var verr *billing.ValidationError
	if errors.As(err, &verr) {
		appErr := appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, verr.Error())
		return appErrors.WithDetails(appErr, verr)
	}
	return appErrors.FromError(err)
}
