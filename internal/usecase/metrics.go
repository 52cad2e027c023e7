package usecase

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/ai-image-tools/internal/inference"
	"github.com/example/ai-image-tools/internal/prediction"
)

// Metrics records classification outcomes. A nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	labels   *prometheus.CounterVec
	verdicts *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ai_image_tools",
				Subsystem: "classify",
				Name:      "requests_total",
				Help:      "Classification requests by feature and outcome",
			},
			[]string{"feature", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ai_image_tools",
				Subsystem: "classify",
				Name:      "duration_seconds",
				Help:      "Time spent encoding and classifying an upload",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"feature"},
		),
		labels: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ai_image_tools",
				Subsystem: "classify",
				Name:      "top_label_total",
				Help:      "Top-scoring label reported per feature; unknown labels count as \"other\"",
			},
			[]string{"feature", "label"},
		),
		verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ai_image_tools",
				Subsystem: "classify",
				Name:      "verdicts_total",
				Help:      "Verdicts reported by threshold features",
			},
			[]string{"feature", "verdict"},
		),
	}
	reg.MustRegister(m.requests, m.duration, m.labels, m.verdicts)
	return m
}

func (m *Metrics) observeRequest(feature string, kind inference.Kind, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := string(kind)
	if kind == inference.KindNone {
		outcome = "success"
	}
	m.requests.WithLabelValues(feature, outcome).Inc()
	m.duration.WithLabelValues(feature).Observe(elapsed.Seconds())
}

func (m *Metrics) observeOutcome(feature Feature, outcome prediction.Outcome) {
	if m == nil {
		return
	}
	if outcome.Verdict != nil {
		m.verdicts.WithLabelValues(feature.ID, strconv.FormatBool(*outcome.Verdict)).Inc()
		return
	}
	if outcome.Top != nil {
		m.labels.WithLabelValues(feature.ID, feature.metricLabel(outcome.Top.Label)).Inc()
	}
}
