package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-finance-api/internal/dto"
	"github.com/noah-isme/sma-finance-api/pkg/jobs"
)

// TuitionWarmJobType identifies matrix warm-up jobs on the background queue.
const TuitionWarmJobType = "tuition.warm"

const warmTimeout = 2 * time.Minute

type tuitionWarmer interface {
	Warm(ctx context.Context, year int) (*dto.WarmResult, error)
}

type jobQueue interface {
	Enqueue(job jobs.Job) (bool, error)
}

// TuitionRefresher rebuilds cached tuition matrices in the background, both after writes and
// on a cron schedule, so readers rarely pay for a cold build.
type TuitionRefresher struct {
	tuition  tuitionWarmer
	location *time.Location
	logger   *zap.Logger
	now      func() time.Time

	mu    sync.Mutex
	queue jobQueue
	cron  *cron.Cron
}

// NewTuitionRefresher constructs a refresher. Attach a queue before scheduling work.
func NewTuitionRefresher(tuition tuitionWarmer, loc *time.Location, logger *zap.Logger) *TuitionRefresher {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TuitionRefresher{tuition: tuition, location: loc, logger: logger, now: time.Now}
}

// AttachQueue sets the queue warm jobs are pushed to.
func (r *TuitionRefresher) AttachQueue(queue jobQueue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = queue
}

// ScheduleWarm requests a rebuild of year. Requests for a year already waiting are coalesced.
func (r *TuitionRefresher) ScheduleWarm(year int) {
	r.mu.Lock()
	queue := r.queue
	r.mu.Unlock()
	if queue == nil {
		return
	}
	accepted, err := queue.Enqueue(jobs.Job{
		ID:      fmt.Sprintf("%s-%d", TuitionWarmJobType, year),
		Type:    TuitionWarmJobType,
		Payload: year,
	})
	if err != nil {
		r.logger.Warn("schedule tuition warm failed", zap.Int("year", year), zap.Error(err))
		return
	}
	if !accepted {
		r.logger.Debug("tuition warm already pending", zap.Int("year", year))
	}
}

// Handle processes a warm job; it is the queue's handler.
func (r *TuitionRefresher) Handle(ctx context.Context, job jobs.Job) error {
	year, ok := job.Payload.(int)
	if !ok {
		r.logger.Error("discarding malformed tuition warm job", zap.String("job_id", job.ID), zap.Any("payload", job.Payload))
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, warmTimeout)
	defer cancel()

	start := time.Now()
	result, err := r.tuition.Warm(ctx, year)
	if err != nil {
		return fmt.Errorf("warm tuition %d: %w", year, err)
	}
	fields := []zap.Field{
		zap.Int("year", year),
		zap.Int("rows", result.Rows),
		zap.Int("errors", result.Errors),
		zap.Int("warnings", result.Warnings),
		zap.Duration("took", time.Since(start)),
	}
	if result.Current != nil {
		fields = append(fields,
			zap.String("period", result.Current.Period),
			zap.Int("overdue", result.Current.OverdueCount),
			zap.Int("completion_rate", result.Current.CompletionRatePercent))
	}
	r.logger.Info("tuition matrix warmed", fields...)
	return nil
}

// Start registers the periodic refresh and warms the current year once.
func (r *TuitionRefresher) Start(schedule string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return nil
	}
	c := cron.New(
		cron.WithLocation(r.location),
		cron.WithLogger(cronLogger{r.logger.Sugar()}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{r.logger.Sugar()})),
	)
	if schedule != "" {
		if _, err := c.AddFunc(schedule, r.warmCurrentYear); err != nil {
			return fmt.Errorf("register tuition refresh %q: %w", schedule, err)
		}
	}
	c.Start()
	r.cron = c
	r.logger.Info("tuition refresher started", zap.String("schedule", schedule), zap.String("timezone", r.location.String()))
	go r.warmCurrentYear()
	return nil
}

// Stop halts the schedule and waits for a running refresh to return.
func (r *TuitionRefresher) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

func (r *TuitionRefresher) warmCurrentYear() {
	r.ScheduleWarm(r.now().In(r.location).Year())
}

// cronLogger routes cron's internal logging through zap.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
