package models

import "time"

// SystemMetrics is a lightweight snapshot of runtime instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	MatrixBuilds             uint64    `json:"matrix_builds"`
	AverageMatrixBuildMs     float64   `json:"average_matrix_build_ms"`
	AmbiguousMatches         uint64    `json:"ambiguous_matches"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
