// Package monitor observes pipeline events. It keeps the latest tick
// snapshot for the status endpoint and mirrors it into Prometheus metrics.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/phrazzld/alpipe/internal/domain"
	"github.com/phrazzld/alpipe/internal/events"
	"github.com/phrazzld/alpipe/internal/task"
)

const namespace = "alpipe"

// Snapshot is the pipeline state after the most recent tick.
type Snapshot struct {
	Phase     string        `json:"phase"`
	Tick      int64         `json:"tick"`
	Status    domain.Status `json:"status"`
	Queues    []task.Report `json:"queues"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type metrics struct {
	queueTasks     *prometheus.GaugeVec
	lifetimeFailed *prometheus.GaugeVec
	modelID        prometheus.Gauge
	trainingID     prometheus.Gauge
	shardID        prometheus.Gauge
	moleculeID     prometheus.Gauge
	ticks          prometheus.Counter
	promotions     prometheus.Counter
	shardsWritten  prometheus.Counter
	shardRecords   prometheus.Counter
	reloadFailures prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		queueTasks: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_tasks",
			Help:      "Tasks tracked per stage queue, by state",
		}, []string{"stage", "state"}),
		lifetimeFailed: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lifetime_failed_tasks",
			Help:      "Failed tasks per stage since the pipeline was created",
		}, []string{"stage"}),
		modelID: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_model_id",
			Help:      "ID of the model in use, -1 while none has been adopted",
		}),
		trainingID: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "next_training_id",
			Help:      "Next training ID to be assigned",
		}),
		shardID: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "next_shard_id",
			Help:      "Next shard ID to be assigned",
		}),
		moleculeID: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "next_molecule_id",
			Help:      "Next molecule ID to be assigned",
		}),
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Scheduler ticks completed",
		}),
		promotions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_promotions_total",
			Help:      "Models adopted as the current model",
		}),
		shardsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shards_written_total",
			Help:      "Labeled shards written",
		}),
		shardRecords: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shard_records_total",
			Help:      "Labeled structures written to shards",
		}),
		reloadFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reload_failures_total",
			Help:      "Configuration reloads that failed and kept the previous configuration",
		}),
	}
}

// Monitor implements events.EventHandler.
type Monitor struct {
	mu       sync.RWMutex
	latest   *Snapshot
	registry *prometheus.Registry
	metrics  *metrics
	logger   *slog.Logger
}

var _ events.EventHandler = (*Monitor)(nil)

// New creates a Monitor with its own metrics registry.
func New(logger *slog.Logger) *Monitor {
	reg := prometheus.NewRegistry()
	return &Monitor{
		registry: reg,
		metrics:  newMetrics(reg),
		logger:   logger.With("component", "monitor"),
	}
}

// Registry returns the registry holding the pipeline metrics.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// Latest returns the most recent snapshot. The boolean is false until the
// first tick has completed.
func (m *Monitor) Latest() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return Snapshot{}, false
	}
	s := *m.latest
	s.Queues = append([]task.Report(nil), m.latest.Queues...)
	return s, true
}

// HandleEvent updates the snapshot and metrics. Unknown event types are
// ignored.
func (m *Monitor) HandleEvent(ctx context.Context, event *events.Event) error {
	switch event.Type {
	case events.TypeTickCompleted:
		var p events.TickCompleted
		if err := event.UnmarshalPayload(&p); err != nil {
			return fmt.Errorf("decode %s payload: %w", event.Type, err)
		}
		m.recordTick(p, event.CreatedAt)

	case events.TypeModelPromoted:
		m.metrics.promotions.Inc()

	case events.TypeShardWritten:
		var p events.ShardWritten
		if err := event.UnmarshalPayload(&p); err != nil {
			return fmt.Errorf("decode %s payload: %w", event.Type, err)
		}
		m.metrics.shardsWritten.Inc()
		m.metrics.shardRecords.Add(float64(p.Records))

	case events.TypeReloadFailed:
		m.metrics.reloadFailures.Inc()

	case events.TypeBootstrapCompleted:
		m.logger.Info("bootstrap phase completed")

	default:
		m.logger.Debug("ignoring event", "event_type", event.Type)
	}
	return nil
}

func (m *Monitor) recordTick(p events.TickCompleted, at time.Time) {
	m.mu.Lock()
	m.latest = &Snapshot{
		Phase:     p.Phase,
		Tick:      p.Tick,
		Status:    p.Status,
		Queues:    p.Queues,
		UpdatedAt: at,
	}
	m.mu.Unlock()

	m.metrics.ticks.Inc()
	for _, q := range p.Queues {
		m.metrics.queueTasks.WithLabelValues(q.Stage, "queued").Set(float64(q.Queued))
		m.metrics.queueTasks.WithLabelValues(q.Stage, "completed").Set(float64(q.Completed))
	}
	for _, stage := range domain.Stages {
		m.metrics.lifetimeFailed.WithLabelValues(stage.String()).Set(float64(p.Status.Failures(stage)))
	}
	if id, ok := p.Status.Model(); ok {
		m.metrics.modelID.Set(float64(id))
	} else {
		m.metrics.modelID.Set(-1)
	}
	m.metrics.trainingID.Set(float64(p.Status.TrainingID))
	m.metrics.shardID.Set(float64(p.Status.ShardID))
	m.metrics.moleculeID.Set(float64(p.Status.MoleculeID))
}
