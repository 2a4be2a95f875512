package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alsattrack_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alsattrack_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	tickDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alsattrack_tick_duration_seconds",
			Help:    "Polling tick duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	predictionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alsattrack_prediction_duration_seconds",
			Help:    "Per-object pass-prediction duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	notificationsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alsattrack_notifications_sent_total",
			Help: "Notifications successfully handed to the transport.",
		},
		[]string{"kind"},
	)

	notificationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alsattrack_notification_failures_total",
			Help: "Notification sends that failed. Not retried.",
		},
	)

	dataUnavailableTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alsattrack_data_unavailable_total",
			Help: "Per-object ticks skipped because TLE or propagation data was unavailable.",
		},
		[]string{"stage"},
	)

	tleAgeSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "alsattrack_tle_age_seconds",
			Help: "Age of the cached element set per satellite.",
		},
		[]string{"catalog_id"},
	)

	alertStates = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "alsattrack_alert_states",
			Help: "Live per-occurrence alert states held by the scheduler.",
		},
	)

	trackedObjects = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "alsattrack_tracked_objects",
			Help: "Number of satellites being tracked.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(tickDurationSeconds)
	prometheus.MustRegister(predictionDurationSeconds)
	prometheus.MustRegister(notificationsSentTotal)
	prometheus.MustRegister(notificationFailuresTotal)
	prometheus.MustRegister(dataUnavailableTotal)
	prometheus.MustRegister(tleAgeSeconds)
	prometheus.MustRegister(alertStates)
	prometheus.MustRegister(trackedObjects)
}

// RecordTick records the duration of one polling tick.
func RecordTick(d time.Duration) {
	tickDurationSeconds.Observe(d.Seconds())
}

// RecordPrediction records the duration of one per-object pass prediction.
func RecordPrediction(d time.Duration) {
	predictionDurationSeconds.Observe(d.Seconds())
}

// RecordNotificationSent counts a notification delivered to the transport.
func RecordNotificationSent(kind string) {
	notificationsSentTotal.WithLabelValues(kind).Inc()
}

// RecordNotificationFailure counts a failed send.
func RecordNotificationFailure() {
	notificationFailuresTotal.Inc()
}

// RecordDataUnavailable counts an object skipped for a tick. Stage is the
// pipeline step that failed: "tle", "prediction" or "scan".
func RecordDataUnavailable(stage string) {
	dataUnavailableTotal.WithLabelValues(stage).Inc()
}

// SetTLEAge updates the element-set age gauge for one satellite.
func SetTLEAge(catalogID int, seconds float64) {
	tleAgeSeconds.WithLabelValues(strconv.Itoa(catalogID)).Set(seconds)
}

// SetAlertStates updates the live alert-state gauge.
func SetAlertStates(n int) {
	alertStates.Set(float64(n))
}

// SetTrackedObjects updates the tracked-object gauge.
func SetTrackedObjects(n int) {
	trackedObjects.Set(float64(n))
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// knownRoutes are the exact paths served by the ops API.
var knownRoutes = map[string]bool{
	"/healthz":        true,
	"/readyz":         true,
	"/metrics":        true,
	"/api/v1/history": true,
	"/api/v1/objects": true,
}

// normalizeRoute collapses parameterized paths to one label and unknown
// paths (bots, scanners) to "other", keeping metric cardinality bounded.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if strings.HasPrefix(path, "/api/v1/passes/") {
		return "/api/v1/passes/{catnr}"
	}
	if strings.HasPrefix(path, "/api/v1/position/") {
		return "/api/v1/position/{catnr}"
	}
	return "other"
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
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
