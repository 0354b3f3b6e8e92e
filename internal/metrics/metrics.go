package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder collects pipeline metrics.
type Recorder struct {
	verdicts       *prometheus.CounterVec
	signalFailures *prometheus.CounterVec
	fallbacks      prometheus.Counter
	latches        prometheus.Counter
	duration       prometheus.Histogram
}

// New registers the pipeline collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "certverify",
			Name:      "verdicts_total",
			Help:      "Verification verdicts by status.",
		}, []string{"status"}),
		signalFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "certverify",
			Name:      "signal_failures_total",
			Help:      "Failed evidence signals by signal name.",
		}, []string{"signal"}),
		fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "certverify",
			Name:      "local_fallbacks_total",
			Help:      "Runs decided by the local registry matcher.",
		}),
		latches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "certverify",
			Name:      "forgery_latches_total",
			Help:      "Runs latched to invalid by a high-confidence forgery signal.",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "certverify",
			Name:      "analyze_duration_seconds",
			Help:      "End-to-end pipeline latency.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// Nop returns a Recorder bound to a throwaway registry.
func Nop() *Recorder {
	return New(prometheus.NewRegistry())
}

// Verdict counts a finished run.
func (r *Recorder) Verdict(status string, seconds float64) {
	r.verdicts.WithLabelValues(status).Inc()
	r.duration.Observe(seconds)
}

// SignalFailed counts a failed evidence signal.
func (r *Recorder) SignalFailed(signal string) {
	r.signalFailures.WithLabelValues(signal).Inc()
}

// Fallback counts a run that used the local matcher.
func (r *Recorder) Fallback() { r.fallbacks.Inc() }

// Latched counts a run latched to invalid.
func (r *Recorder) Latched() { r.latches.Inc() }
