package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingCacheRepo struct{}

func (failingCacheRepo) Get(context.Context, string, interface{}) error { return errors.New("redis down") }
func (failingCacheRepo) Set(context.Context, string, interface{}, time.Duration) error {
	return errors.New("redis down")
}
func (failingCacheRepo) DeleteByPattern(context.Context, string) error { return errors.New("redis down") }

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "tuition:g0:matrix:2024:period_key:2024-01-15", CacheKey(TuitionCacheNamespace, "g0", "matrix", 2024, "PERIOD_KEY", "2024-01-15"))
}

func TestCacheServiceRoundTrip(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewCacheService(&stubCacheRepo{}, metrics, time.Minute, zap.NewNop(), true)
	ctx := context.Background()

	var dest map[string]int
	assert.False(t, svc.Get(ctx, "tuition:a", &dest))
	require.NoError(t, svc.Set(ctx, "tuition:a", map[string]int{"paid": 3}, 0))
	assert.True(t, svc.Get(ctx, "tuition:a", &dest))
	assert.Equal(t, 3, dest["paid"])

	require.NoError(t, svc.Invalidate(ctx, TuitionCacheNamespace))
	assert.False(t, svc.Get(ctx, "tuition:a", &dest))

	snapshot := metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.CacheHits)
	assert.Equal(t, uint64(2), snapshot.CacheMisses)
}

func TestCacheServiceDegradesToMiss(t *testing.T) {
	svc := NewCacheService(failingCacheRepo{}, nil, time.Minute, zap.NewNop(), true)
	var dest map[string]int

	assert.False(t, svc.Get(context.Background(), "tuition:a", &dest))
	assert.Error(t, svc.Set(context.Background(), "tuition:a", 1, 0))
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := &stubCacheRepo{}
	svc := NewCacheService(repo, nil, time.Minute, zap.NewNop(), false)

	require.NoError(t, svc.Set(context.Background(), "tuition:a", 1, 0))
	assert.Empty(t, repo.store)
	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
	assert.NoError(t, nilSvc.Invalidate(context.Background(), TuitionCacheNamespace))
}
