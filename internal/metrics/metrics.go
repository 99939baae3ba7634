package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "resumechat"

// Recorder counts dictation activity. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	sessionsStarted prometheus.Counter
	sessionsStopped *prometheus.CounterVec
	startFailures   *prometheus.CounterVec
	fragments       *prometheus.CounterVec
	mediumMerges    prometheus.Counter
	backendRequests *prometheus.CounterVec
}

// New registers the dictation collectors on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dictation",
			Name:      "sessions_started_total",
			Help:      "Dictation sessions started.",
		}),
		sessionsStopped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dictation",
			Name:      "sessions_stopped_total",
			Help:      "Dictation sessions stopped, by reason.",
		}, []string{"reason"}),
		startFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dictation",
			Name:      "start_failures_total",
			Help:      "Recognizer start rejections, by cause.",
		}, []string{"code"}),
		fragments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dictation",
			Name:      "fragments_total",
			Help:      "Recognition fragments received, by kind.",
		}, []string{"kind"}),
		mediumMerges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dictation",
			Name:      "pause_merges_total",
			Help:      "Live fragments settled by a medium pause.",
		}),
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Backend requests, by operation and outcome.",
		}, []string{"op", "outcome"}),
	}

	r.registry.MustRegister(
		r.sessionsStarted,
		r.sessionsStopped,
		r.startFailures,
		r.fragments,
		r.mediumMerges,
		r.backendRequests,
		collectors.NewGoCollector(),
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) SessionStarted() {
	if r == nil {
		return
	}
	r.sessionsStarted.Inc()
}

func (r *Recorder) SessionStopped(reason string) {
	if r == nil {
		return
	}
	r.sessionsStopped.WithLabelValues(reason).Inc()
}

func (r *Recorder) StartFailed(code string) {
	if r == nil {
		return
	}
	r.startFailures.WithLabelValues(code).Inc()
}

func (r *Recorder) Fragment(kind string) {
	if r == nil {
		return
	}
	r.fragments.WithLabelValues(kind).Inc()
}

func (r *Recorder) MediumMerge() {
	if r == nil {
		return
	}
	r.mediumMerges.Inc()
}

func (r *Recorder) BackendRequest(op string, outcome string) {
	if r == nil {
		return
	}
	r.backendRequests.WithLabelValues(op, outcome).Inc()
}
