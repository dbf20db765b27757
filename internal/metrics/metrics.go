// Package metrics counts pipeline activity with prometheus collectors and
// exports them in the node exporter textfile format.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/thaitts/corpusprep/internal/annotate"
	"github.com/thaitts/corpusprep/internal/ttypes"
)

// Line outcomes.
const (
	OutcomeAdmitted = "admitted"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics holds the collectors of one run on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	lines       *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	resumed     *prometheus.CounterVec
	samples     *prometheus.CounterVec
	g2p         *prometheus.CounterVec
	audio       *prometheus.HistogramVec
	slotFailure prometheus.Counter
}

// New creates the collectors. Every series carries the run id.
func New(runID string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	constLabels := prometheus.Labels{"run_id": runID}

	return &Metrics{
		reg: reg,
		lines: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "corpusprep_lines_total",
				Help:        "Input lines processed by language and outcome",
				ConstLabels: constLabels,
			},
			[]string{"language", "outcome"},
		),
		rejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "corpusprep_rejections_total",
				Help:        "Rejected lines by language and reason",
				ConstLabels: constLabels,
			},
			[]string{"language", "reason"},
		),
		resumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "corpusprep_resumed_total",
				Help:        "Lines whose metadata record was reused",
				ConstLabels: constLabels,
			},
			[]string{"language"},
		),
		samples: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "corpusprep_samples_total",
				Help:        "Samples written to the corpus by language",
				ConstLabels: constLabels,
			},
			[]string{"language"},
		),
		g2p: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "corpusprep_g2p_requests_total",
				Help:        "Phonemization results by status",
				ConstLabels: constLabels,
			},
			[]string{"status"},
		),
		// Buckets: 1s, 2s, 4s ... 64s
		audio: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "corpusprep_sample_duration_seconds",
				Help:        "Audio duration of admitted lines",
				Buckets:     prometheus.ExponentialBuckets(1, 2, 7),
				ConstLabels: constLabels,
			},
			[]string{"language"},
		),
		slotFailure: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "corpusprep_worker_init_failures_total",
				Help:        "Worker slots that failed to initialize",
				ConstLabels: constLabels,
			},
		),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Observe records one outcome.
func (m *Metrics) Observe(lang ttypes.Language, o annotate.Outcome) {
	l := lang.String()
	switch {
	case o.Reason == ttypes.ReasonError:
		m.lines.WithLabelValues(l, OutcomeError).Inc()
	case !o.Admitted():
		m.lines.WithLabelValues(l, OutcomeRejected).Inc()
		m.rejections.WithLabelValues(l, string(o.Reason)).Inc()
	default:
		m.lines.WithLabelValues(l, OutcomeAdmitted).Inc()
		if len(o.Samples) > 0 {
			m.audio.WithLabelValues(l).Observe(o.Samples[0].Duration)
		}
	}
	if o.Resumed {
		m.resumed.WithLabelValues(l).Inc()
	}
	if o.G2P != "" {
		m.g2p.WithLabelValues(string(o.G2P)).Inc()
	}
}

// SamplesWritten counts samples that reached the archive.
func (m *Metrics) SamplesWritten(lang ttypes.Language, n int) {
	m.samples.WithLabelValues(lang.String()).Add(float64(n))
}

// SlotsFailed counts worker slots whose initialization failed.
func (m *Metrics) SlotsFailed(n int) {
	m.slotFailure.Add(float64(n))
}

// WriteTextfile writes every collected series to path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("unable to write metrics: %w", err)
	}
	return nil
}
