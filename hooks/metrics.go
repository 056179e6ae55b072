package hooks

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/stackline/ctxbudget/checkpoint"
	"github.com/stackline/ctxbudget/compaction"
	"github.com/stackline/ctxbudget/session"
)

// MetricsHooks exports engine activity as OpenTelemetry metrics.
type MetricsHooks struct {
	UnitsAppended    metric.Int64Counter
	TokensAppended   metric.Int64Counter
	Compactions      metric.Int64Counter
	TokensReclaimed  metric.Int64Counter
	CompactionLength metric.Float64Histogram
	CheckpointSaves  metric.Int64Counter
}

// NewMetricsHooks creates all metric instruments from the given meter.
func NewMetricsHooks(meter metric.Meter) (*MetricsHooks, error) {
	m := &MetricsHooks{}
	var err error

	m.UnitsAppended, err = meter.Int64Counter("ctxbudget.units.appended",
		metric.WithDescription("Content units appended to sessions"),
	)
	if err != nil {
		return nil, err
	}

	m.TokensAppended, err = meter.Int64Counter("ctxbudget.tokens.appended",
		metric.WithDescription("Budget units consumed by appended content"),
	)
	if err != nil {
		return nil, err
	}

	m.Compactions, err = meter.Int64Counter("ctxbudget.compactions",
		metric.WithDescription("Completed compaction transforms"),
	)
	if err != nil {
		return nil, err
	}

	m.TokensReclaimed, err = meter.Int64Counter("ctxbudget.tokens.reclaimed",
		metric.WithDescription("Budget units freed by compaction"),
	)
	if err != nil {
		return nil, err
	}

	m.CompactionLength, err = meter.Float64Histogram("ctxbudget.compaction.duration",
		metric.WithDescription("Compaction duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.CheckpointSaves, err = meter.Int64Counter("ctxbudget.checkpoint.saves",
		metric.WithDescription("Durable checkpoint writes"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Register attaches all metrics hooks to the registry.
func (m *MetricsHooks) Register(r *Registry) {
	r.OnAfterAppend(m.AfterAppend)
	r.OnAfterCompaction(m.AfterCompaction)
	r.OnCheckpointSaved(m.CheckpointSaved)
}

// AfterAppend records append activity
func (m *MetricsHooks) AfterAppend(ctx context.Context, sessionID string, unit *session.ContentUnit) error {
	attrs := metric.WithAttributes(
		attribute.String("origin", string(unit.Origin)),
		attribute.String("tier", string(unit.Tier)),
	)
	m.UnitsAppended.Add(ctx, 1, attrs)
	m.TokensAppended.Add(ctx, int64(unit.Cost), attrs)
	return nil
}

// AfterCompaction records the committed transform
func (m *MetricsHooks) AfterCompaction(ctx context.Context, event *compaction.Event) error {
	attrs := metric.WithAttributes(
		attribute.Bool("degraded", event.Degraded),
		attribute.String("trigger", event.Trigger),
	)
	m.Compactions.Add(ctx, 1, attrs)
	m.TokensReclaimed.Add(ctx, int64(event.Reclaimed()), attrs)
	m.CompactionLength.Record(ctx, event.Duration.Seconds(), attrs)
	return nil
}

// CheckpointSaved records durable checkpoint writes
func (m *MetricsHooks) CheckpointSaved(ctx context.Context, sessionID string, rec *checkpoint.Record) error {
	m.CheckpointSaves.Add(ctx, 1)
	return nil
}
