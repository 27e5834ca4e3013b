package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/wayback-mirror/internal/progress"
)

// Result labels for mirror_items_total and mirror_runs_completed_total.
const (
	resultStored  = "stored"
	resultFailed  = "failed"
	resultSuccess = "success"
	resultError   = "error"
)

// PrometheusSink exports mirror progress as Prometheus collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   prometheus.Histogram

	items         *prometheus.CounterVec
	fetchBytes    *prometheus.CounterVec
	fetchAttempts *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
}

// NewPrometheusSink registers the collectors against reg, falling back to the
// default registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mirror_runs_started_total",
			Help: "Mirror runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_runs_completed_total",
			Help: "Mirror runs finished, partitioned by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mirror_run_duration_seconds",
			Help:    "Wall time of successful mirror runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_items_total",
			Help: "Mirrored items partitioned by kind and result.",
		}, []string{"kind", "result"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_fetch_bytes_total",
			Help: "Bytes stored per reference kind.",
		}, []string{"kind"}),
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_fetch_attempts_total",
			Help: "HTTP attempts made per reference kind, retries included.",
		}, []string{"kind"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mirror_fetch_duration_seconds",
			Help:    "Duration of the successful attempt per reference kind.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"kind"}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runDuration,
		s.items,
		s.fetchBytes,
		s.fetchAttempts,
		s.fetchDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
		case progress.StageRunDone:
			s.runsCompleted.WithLabelValues(resultSuccess).Inc()
			if evt.Dur > 0 {
				s.runDuration.Observe(evt.Dur.Seconds())
			}
		case progress.StageRunError:
			s.runsCompleted.WithLabelValues(resultError).Inc()
		case progress.StageItemStored:
			s.observeItem(evt, resultStored)
		case progress.StageItemFailed:
			s.observeItem(evt, resultFailed)
		}
	}
	return nil
}

func (s *PrometheusSink) observeItem(evt progress.Event, result string) {
	kind := evt.Kind
	if kind == "" {
		kind = "unknown"
	}
	s.items.WithLabelValues(kind, result).Inc()
	if evt.Attempts > 0 {
		s.fetchAttempts.WithLabelValues(kind).Add(float64(evt.Attempts))
	}
	if result != resultStored {
		return
	}
	if evt.Bytes > 0 {
		s.fetchBytes.WithLabelValues(kind).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.fetchDuration.WithLabelValues(kind).Observe(evt.Dur.Seconds())
	}
}

// Close implements progress.Sink; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
