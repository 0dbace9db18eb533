package worker

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jwebster45206/scene-engine/pkg/orchestrator"
)

// Scene outcomes used as the "outcome" label.
const (
	OutcomeConcluded = "concluded"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Metrics are the worker's prometheus series. They register with the
// registry passed to NewMetrics, never the global one.
type Metrics struct {
	scenesStarted  prometheus.Counter
	scenesFinished *prometheus.CounterVec
	sceneDuration  *prometheus.HistogramVec
	turns          prometheus.Counter
	actions        *prometheus.CounterVec
	invariants     prometheus.Counter
}

var _ orchestrator.Observer = (*Metrics)(nil)

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		scenesStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "scene_engine_scenes_started_total",
			Help: "Total number of scene runs started.",
		}),
		scenesFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scene_engine_scenes_finished_total",
			Help: "Total number of scene runs finished, partitioned by outcome.",
		}, []string{"outcome"}),
		sceneDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scene_engine_scene_duration_seconds",
			Help:    "Wall time of scene runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"outcome"}),
		turns: f.NewCounter(prometheus.CounterOpts{
			Name: "scene_engine_turns_total",
			Help: "Total number of completed turns across all scenes.",
		}),
		actions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scene_engine_actions_total",
			Help: "Actions attempted, partitioned by kind and result.",
		}, []string{"kind", "result"}),
		invariants: f.NewCounter(prometheus.CounterOpts{
			Name: "scene_engine_invariant_violations_total",
			Help: "Scene invariant violations detected after a turn.",
		}),
	}
}

func (m *Metrics) SceneStarted() {
	m.scenesStarted.Inc()
}

// SceneFinished records the outcome and duration of one run.
func (m *Metrics) SceneFinished(outcome string, d time.Duration) {
	m.scenesFinished.WithLabelValues(outcome).Inc()
	m.sceneDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// Observe counts turns and action results from orchestrator notices.
func (m *Metrics) Observe(_ context.Context, n orchestrator.Notice) {
	switch n.Kind {
	case orchestrator.NoticeTurn:
		m.turns.Inc()
		if n.Action != nil {
			m.actions.WithLabelValues(string(n.Action.Kind), "applied").Inc()
		}
	case orchestrator.NoticeRejected:
		kind := "unknown"
		if n.Action != nil {
			kind = string(n.Action.Kind)
		}
		m.actions.WithLabelValues(kind, "rejected").Inc()
	case orchestrator.NoticeInvariant:
		m.invariants.Inc()
	}
}
