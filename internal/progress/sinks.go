package progress

import (
	"context"

	"go.uber.org/zap"

	"github.com/hltv-tools/hltv-sync/internal/metrics"
)

// LogSink emits structured logs for the progress stream.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs one event with structured fields.
func (s *LogSink) Consume(_ context.Context, evt Event) error {
	fields := []zap.Field{
		zap.String("run_id", evt.RunID),
		zap.String("stage", string(evt.Stage)),
		zap.String("unit", evt.Unit.Key()),
	}
	if evt.URL != "" {
		fields = append(fields, zap.String("url", evt.URL))
	}
	if evt.Attempt > 0 {
		fields = append(fields, zap.Int("attempt", evt.Attempt))
	}
	if evt.Outcome != "" {
		fields = append(fields, zap.String("outcome", string(evt.Outcome)))
	}
	if len(evt.Signals) > 0 {
		fields = append(fields, zap.Strings("signals", evt.Signals))
	}
	if evt.Dur > 0 {
		fields = append(fields, zap.Duration("dur", evt.Dur))
	}
	if evt.Note != "" {
		fields = append(fields, zap.String("note", evt.Note))
	}
	switch evt.Stage {
	case StageUnitFailed, StageRunError:
		s.logger.Warn("sync progress", fields...)
	default:
		s.logger.Info("sync progress", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error { return nil }

// MetricsSink bridges progress events to the Prometheus collectors.
type MetricsSink struct{}

// NewMetricsSink initializes the collectors and returns the bridge.
func NewMetricsSink() *MetricsSink {
	metrics.Init()
	return &MetricsSink{}
}

// Consume updates the collectors matching the event stage.
func (s *MetricsSink) Consume(_ context.Context, evt Event) error {
	kind := string(evt.Unit.Kind)
	switch evt.Stage {
	case StageUnitDone:
		metrics.RecordUnit(kind, "succeeded")
		if evt.Outcome != "" {
			metrics.RecordUpsert(kind, string(evt.Outcome))
		}
	case StageUnitFailed:
		metrics.RecordUnit(kind, "failed")
	case StageUnitSkipped:
		metrics.RecordUnit(kind, "skipped")
	case StageBlocked:
		metrics.RecordBlocked(kind)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *MetricsSink) Close(context.Context) error { return nil }
