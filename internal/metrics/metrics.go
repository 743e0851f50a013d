package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	RegisterSuccess = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "register_success_total",
		Help: "Total successful registrations",
	})

	LoginFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "login_failure_total",
		Help: "Total failed login attempts",
	}, []string{"reason"})

	TweetsPosted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tweets_posted_total",
		Help: "Total tweets successfully posted",
	})

	TweetsDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tweets_deleted_total",
		Help: "Total tweets deleted by their authors",
	})

	FollowChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "follow_changes_total",
		Help: "Follow edges created or removed",
	}, []string{"action"})

	LikeChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "like_changes_total",
		Help: "Like and unlike requests applied",
	}, []string{"action"})

	EventPublishFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "event_publish_failures_total",
		Help: "Domain events that could not be published",
	})
)

func init() {
	prometheus.MustRegister(
		RequestDuration,
		RegisterSuccess,
		LoginFailure,
		TweetsPosted,
		TweetsDeleted,
		FollowChanges,
		LikeChanges,
		EventPublishFailures,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware to track request timing and status code
type statusRecordingWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecordingWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// InstrumentHandler observes request durations labelled by the matched route
// template, so /tweets/{id} stays one series.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &statusRecordingWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		RequestDuration.
			WithLabelValues(r.Method, routeName(r), strconv.Itoa(rw.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}
