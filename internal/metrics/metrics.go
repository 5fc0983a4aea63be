package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "levelsentinel_job_executions_total",
			Help: "Total number of S/R calculations",
		},
		[]string{"symbol", "timeframe", "status"}, // status: success|no_data|persistence|computation|unknown
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "levelsentinel_job_duration_seconds",
			Help:    "S/R calculation duration in seconds, fetch to persist",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"symbol", "timeframe"},
	)

	LastSuccess = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "levelsentinel_last_success_timestamp",
			Help: "Unix timestamp of the last successful calculation",
		},
		[]string{"symbol", "timeframe"},
	)

	BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "levelsentinel_batch_duration_seconds",
			Help:    "Batch run duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	BatchRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "levelsentinel_batch_runs_total",
			Help: "Total number of batch runs",
		},
		[]string{"status"}, // status: ok|partial|skipped
	)

	CacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "levelsentinel_cache_requests_total",
			Help: "Level cache lookups",
		},
		[]string{"result"}, // result: hit|miss|error
	)

	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "levelsentinel_events_published_total",
			Help: "Level events written to the broker",
		},
		[]string{"status"},
	)
)

var once sync.Once

// Init registers all metrics with Prometheus. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(JobExecutions)
		prometheus.MustRegister(JobDuration)
		prometheus.MustRegister(LastSuccess)
		prometheus.MustRegister(BatchDuration)
		prometheus.MustRegister(BatchRuns)
		prometheus.MustRegister(CacheRequests)
		prometheus.MustRegister(EventsPublished)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordJob records one symbol/timeframe calculation. kind is "success" or
// an error kind.
func RecordJob(symbol, timeframe, kind string, duration time.Duration) {
	JobExecutions.WithLabelValues(symbol, timeframe, kind).Inc()
	JobDuration.WithLabelValues(symbol, timeframe).Observe(duration.Seconds())
	if kind == "success" {
		LastSuccess.WithLabelValues(symbol, timeframe).SetToCurrentTime()
	}
}

// RecordBatch records a finished batch run.
func RecordBatch(duration time.Duration, failures int) {
	status := "ok"
	if failures > 0 {
		status = "partial"
	}
	BatchRuns.WithLabelValues(status).Inc()
	BatchDuration.Observe(duration.Seconds())
}

// RecordSkippedBatch counts a trigger dropped because a run was active.
func RecordSkippedBatch() {
	BatchRuns.WithLabelValues("skipped").Inc()
}

func RecordCache(result string) {
	CacheRequests.WithLabelValues(result).Inc()
}

func RecordPublish(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	EventsPublished.WithLabelValues(status).Inc()
}
