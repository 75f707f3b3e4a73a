package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"analytics-tag-checker/internal/models"
)

// Outcome labels for analyses.
const (
	OutcomeDetected   = "ok"
	OutcomeRestricted = "restricted"
	OutcomeMock       = "mock"
	OutcomeFailed     = "failed"
	OutcomeSuperseded = "superseded"
)

type Recorder struct {
	registry   *prometheus.Registry
	analyses   *prometheus.CounterVec
	detections *prometheus.CounterVec
	duration   prometheus.Histogram
}

// New registers the collectors on a private registry so several recorders
// (one per test, for instance) never collide.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tagcheck_analyses_total",
			Help: "Page analyses by outcome.",
		}, []string{"outcome"}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tagcheck_vendor_detections_total",
			Help: "Pages on which a vendor was detected.",
		}, []string{"vendor"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tagcheck_analysis_duration_seconds",
			Help:    "Time from trigger to committed analysis.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	r.registry.MustRegister(r.analyses, r.detections, r.duration,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return r
}

func (r *Recorder) ObserveAnalysis(outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.analyses.WithLabelValues(outcome).Inc()
	r.duration.Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveDetections(a models.PageAnalysis) {
	if r == nil {
		return
	}
	for v, res := range a.Results {
		if res.Detected {
			r.detections.WithLabelValues(string(v)).Inc()
		}
	}
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }
