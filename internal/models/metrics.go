package models

import "time"

// SystemMetrics is a JSON snapshot of in-process counters.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	Enrolled                 uint64    `json:"enrolled"`
	Waitlisted               uint64    `json:"waitlisted"`
	Promotions               uint64    `json:"promotions"`
	ExpiredNotifications     uint64    `json:"expired_notifications"`
	CountRepairs             uint64    `json:"count_repairs"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
