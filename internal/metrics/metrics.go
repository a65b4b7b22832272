package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type BotMetrics struct {
	RequestsTotal  *prometheus.CounterVec
	JobsTotal      *prometheus.CounterVec
	CacheHitsTotal prometheus.Counter
	QuotaDenials   prometheus.Counter
	EngineDuration prometheus.Histogram
	EngineFailures *prometheus.CounterVec
}

var (
	instance *BotMetrics
	once     sync.Once
)

func GetMetrics() *BotMetrics {
	once.Do(func() {
		instance = &BotMetrics{
			RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "uztts_requests_total",
				Help: "Synthesis requests by admission result",
			}, []string{"result"}),
			JobsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "uztts_jobs_total",
				Help: "Synthesis jobs by terminal status",
			}, []string{"status"}),
			CacheHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "uztts_cache_hits_total",
				Help: "Audio cache hits",
			}),
			QuotaDenials: promauto.NewCounter(prometheus.CounterOpts{
				Name: "uztts_quota_denials_total",
				Help: "Requests denied by the usage ledger",
			}),
			EngineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "uztts_engine_request_duration_seconds",
				Help:    "Latency of synthesis engine calls",
				Buckets: prometheus.DefBuckets,
			}),
			EngineFailures: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "uztts_engine_failures_total",
				Help: "Engine failures by classification",
			}, []string{"kind"}),
		}
	})
	return instance
}
