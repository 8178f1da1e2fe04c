package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbwatch_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orbwatch_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	snapshotsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbwatch_snapshots_ingested_total",
			Help: "Element snapshots appended to the store, by source.",
		},
		[]string{"source"},
	)

	fetchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbwatch_fetch_errors_total",
			Help: "Failed source fetches, by source.",
		},
		[]string{"source"},
	)

	propagationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orbwatch_propagation_duration_seconds",
			Help:    "Duration of batch propagation runs.",
			Buckets: prometheus.DefBuckets,
		},
	)

	propagationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbwatch_propagation_total",
			Help: "Per-object propagation outcomes.",
		},
		[]string{"result"},
	)

	signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbwatch_signals_total",
			Help: "Signal persistence outcomes (inserted, duplicate, reactivated, expired).",
		},
		[]string{"outcome"},
	)

	cycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orbwatch_cycle_duration_seconds",
			Help:    "Duration of batch cycles, by cycle kind.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"cycle"},
	)

	elementAgeHours = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orbwatch_element_age_hours",
			Help: "Age of the newest element epoch per source, worst object.",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(snapshotsIngested)
	prometheus.MustRegister(fetchErrorsTotal)
	prometheus.MustRegister(propagationDuration)
	prometheus.MustRegister(propagationTotal)
	prometheus.MustRegister(signalsTotal)
	prometheus.MustRegister(cycleDuration)
	prometheus.MustRegister(elementAgeHours)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordIngest counts snapshots appended for one source.
func RecordIngest(source string, count int) {
	snapshotsIngested.WithLabelValues(source).Add(float64(count))
}

// RecordFetchError counts a failed source fetch.
func RecordFetchError(source string) {
	fetchErrorsTotal.WithLabelValues(source).Inc()
}

// RecordPropagation records one batch propagation run.
func RecordPropagation(d time.Duration, success, errors int) {
	propagationDuration.Observe(d.Seconds())
	propagationTotal.WithLabelValues("success").Add(float64(success))
	propagationTotal.WithLabelValues("error").Add(float64(errors))
}

// RecordSignals records the outcome counts of one synthesis run.
func RecordSignals(inserted, duplicates, reactivated, expired int) {
	signalsTotal.WithLabelValues("inserted").Add(float64(inserted))
	signalsTotal.WithLabelValues("duplicate").Add(float64(duplicates))
	signalsTotal.WithLabelValues("reactivated").Add(float64(reactivated))
	signalsTotal.WithLabelValues("expired").Add(float64(expired))
}

// RecordCycle records one cycle's wall-clock duration.
func RecordCycle(cycle string, d time.Duration) {
	cycleDuration.WithLabelValues(cycle).Observe(d.Seconds())
}

// SetElementAge sets the worst-case element age gauge for a source.
func SetElementAge(source string, hours float64) {
	elementAgeHours.WithLabelValues(source).Set(hours)
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)

		httpRequestsTotal.WithLabelValues(r.URL.Path, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(r.URL.Path, r.Method).Observe(duration)
	})
}
