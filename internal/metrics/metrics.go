package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Outcome string

const (
	Success Outcome = "success"
	Error   Outcome = "error"
	NoData  Outcome = "no_data"
)

func (o Outcome) String() string {
	return string(o)
}

var defaultHistogramBucketsSeconds = []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60}

var (
	once sync.Once

	upstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "walletscore_upstream_request_duration_seconds",
			Help:    "Histogram of outgoing provider request durations in seconds.",
			Buckets: defaultHistogramBucketsSeconds,
		},
		[]string{"provider", "operation", "outcome"},
	)

	scoringRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletscore_requests_total",
			Help: "Number of scoring requests by chain and error code.",
		},
		[]string{"chain", "code"},
	)

	scoringDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "walletscore_request_duration_seconds",
			Help:    "End-to-end scoring duration in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"chain"},
	)

	scoreValues = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "walletscore_score",
			Help:    "Distribution of computed scores.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"chain", "score_type"},
	)

	persistFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "walletscore_persist_failures_total",
			Help: "The total number of scoring records that could not be persisted.",
		},
	)

	eventPublishFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "walletscore_event_publish_failures_total",
			Help: "The total number of scoring events that could not be published.",
		},
	)
)

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			upstreamRequestDuration,
			scoringRequests,
			scoringDuration,
			scoreValues,
			persistFailures,
			eventPublishFailures,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordUpstream(d time.Duration, provider, operation string, outcome Outcome) {
	upstreamRequestDuration.WithLabelValues(provider, operation, outcome.String()).Observe(d.Seconds())
}

// RecordScoring counts a finished request. code is empty on success.
func RecordScoring(d time.Duration, chain, code string) {
	if code == "" {
		code = "ok"
	}
	scoringRequests.WithLabelValues(chain, code).Inc()
	scoringDuration.WithLabelValues(chain).Observe(d.Seconds())
}

func RecordScore(chain, scoreType string, score float64) {
	scoreValues.WithLabelValues(chain, scoreType).Observe(score)
}

func IncPersistFailures() {
	persistFailures.Inc()
}

func IncEventPublishFailures() {
	eventPublishFailures.Inc()
}
