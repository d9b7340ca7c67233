package metrics

import (
	"github.com/cuemby/fleet-provisioner/pkg/types"
	"github.com/rs/zerolog"
)

// Sink publishes per-pool iteration records as Prometheus gauges and as a
// structured log line
type Sink struct {
	logger zerolog.Logger
}

// NewSink creates a sink that logs through logger
func NewSink(logger zerolog.Logger) *Sink {
	return &Sink{logger: logger}
}

// RecordIteration records one pool's view of a sweep
func (s *Sink) RecordIteration(rec types.IterationRecord) {
	PendingTasks.WithLabelValues(rec.Pool).Set(float64(rec.PendingTasks))
	RunningCapacity.WithLabelValues(rec.Pool).Set(float64(rec.RunningCapacity))
	PendingCapacity.WithLabelValues(rec.Pool).Set(float64(rec.PendingCapacity))
	CapacityChange.WithLabelValues(rec.Pool).Set(float64(rec.Change))

	s.logger.Info().
		Str("provisioner_id", rec.ProvisionerID).
		Str("pool", rec.Pool).
		Int("pending_tasks", rec.PendingTasks).
		Int("running_capacity", rec.RunningCapacity).
		Int("pending_capacity", rec.PendingCapacity).
		Int("change", rec.Change).
		Time("at", rec.Time).
		Msg("pool iteration")
}
