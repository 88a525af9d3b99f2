package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "storygen/backend"

// StoryMetrics groups the instruments recorded by the story engine.
// A nil *StoryMetrics records nothing.
type StoryMetrics struct {
	sessionsCreated metric.Int64Counter
	branches        metric.Int64Counter
	parseFallbacks  metric.Int64Counter
	scenesRendered  metric.Int64Counter
	exports         metric.Int64Counter
	renderDuration  metric.Float64Histogram
}

// NewStoryMetrics creates the instruments on meter.
func NewStoryMetrics(meter metric.Meter) (*StoryMetrics, error) {
	m := &StoryMetrics{}
	var err error

	if m.sessionsCreated, err = meter.Int64Counter("story_sessions_created_total",
		metric.WithDescription("Story sessions created")); err != nil {
		return nil, err
	}
	if m.branches, err = meter.Int64Counter("story_branches_total",
		metric.WithDescription("Branch requests by effect")); err != nil {
		return nil, err
	}
	if m.parseFallbacks, err = meter.Int64Counter("story_beat_parse_fallbacks_total",
		metric.WithDescription("Generator responses that could not be parsed into beats")); err != nil {
		return nil, err
	}
	if m.scenesRendered, err = meter.Int64Counter("story_scenes_rendered_total",
		metric.WithDescription("Scene illustrations rendered")); err != nil {
		return nil, err
	}
	if m.exports, err = meter.Int64Counter("story_exports_total",
		metric.WithDescription("Exports by kind and outcome")); err != nil {
		return nil, err
	}
	if m.renderDuration, err = meter.Float64Histogram("story_render_duration_seconds",
		metric.WithDescription("Wall time of a full session render"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}

	return m, nil
}

// DefaultStoryMetrics builds instruments on the global meter provider.
func DefaultStoryMetrics() *StoryMetrics {
	m, err := NewStoryMetrics(otel.Meter(meterName))
	if err != nil {
		return nil
	}
	return m
}

func (m *StoryMetrics) SessionCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsCreated.Add(ctx, 1)
}

// Branch records whether a branch replaced the beats or was a no-op.
func (m *StoryMetrics) Branch(ctx context.Context, changed bool) {
	if m == nil {
		return
	}
	effect := "noop"
	if changed {
		effect = "changed"
	}
	m.branches.Add(ctx, 1, metric.WithAttributes(attribute.String("effect", effect)))
}

func (m *StoryMetrics) ParseFallback(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.parseFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

func (m *StoryMetrics) SceneRendered(ctx context.Context) {
	if m == nil {
		return
	}
	m.scenesRendered.Add(ctx, 1)
}

func (m *StoryMetrics) RenderFinished(ctx context.Context, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.renderDuration.Record(ctx, elapsed.Seconds())
}

// Export records one export attempt. outcome is "ok" or a failure code.
func (m *StoryMetrics) Export(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	m.exports.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}
