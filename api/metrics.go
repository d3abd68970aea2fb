package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName       = "hustlehub-api/api"
	tasksSpanName    = "hustle.tasks.fetch"
	tasksEventName   = "tasks.request"
	tasksEventDomain = "hustle"
	tasksRoute       = "/api/tasks"
)

// taskRequestMetrics captures per-stage timings for the tasks route and
// emits them twice: as an otel span and as a structured observability.event
// log entry carrying the trace id.
type taskRequestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	authDuration   time.Duration
	fetchDuration  time.Duration
	encodeDuration time.Duration
	tasksReturned  int
	errorStage     string
}

func newTaskRequestMetrics(ctx context.Context, logger *log.Logger) (*taskRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, tasksSpanName,
		trace.WithAttributes(attribute.String("http.route", tasksRoute)))
	return &taskRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}, spanCtx
}

func (m *taskRequestMetrics) ObserveAuth(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.authDuration = duration
}

func (m *taskRequestMetrics) ObserveFetch(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.fetchDuration = duration
}

func (m *taskRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *taskRequestMetrics) SetTasksReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.tasksReturned = count
}

func (m *taskRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log finishes the span and writes the observability event. It must be
// called exactly once per request.
func (m *taskRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	totalMs := durationToMillis(time.Since(m.start))
	attrs := map[string]any{
		"http.route":                  tasksRoute,
		"http.status_code":            status,
		"hustle.tasks.total_ms":       totalMs,
		"hustle.tasks.tasks_returned": m.tasksReturned,
	}
	spanAttrs := []attribute.KeyValue{
		attribute.Int("http.status_code", status),
		attribute.Float64("hustle.tasks.total_ms", totalMs),
		attribute.Int("hustle.tasks.tasks_returned", m.tasksReturned),
	}

	if m.authDuration > 0 {
		ms := durationToMillis(m.authDuration)
		attrs["hustle.tasks.auth_ms"] = ms
		spanAttrs = append(spanAttrs, attribute.Float64("hustle.tasks.auth_ms", ms))
	}
	if m.fetchDuration > 0 {
		ms := durationToMillis(m.fetchDuration)
		attrs["hustle.tasks.fetch_ms"] = ms
		spanAttrs = append(spanAttrs, attribute.Float64("hustle.tasks.fetch_ms", ms))
	}
	if m.encodeDuration > 0 {
		ms := durationToMillis(m.encodeDuration)
		attrs["hustle.tasks.encode_ms"] = ms
		spanAttrs = append(spanAttrs, attribute.Float64("hustle.tasks.encode_ms", ms))
	}
	if m.errorStage != "" {
		attrs["hustle.tasks.error_stage"] = m.errorStage
		spanAttrs = append(spanAttrs, attribute.String("hustle.tasks.error_stage", m.errorStage))
	}
	if err != nil {
		attrs["error"] = err.Error()
	}

	m.span.SetAttributes(spanAttrs...)
	m.span.AddEvent("observability.event")
	if err != nil || m.errorStage != "" {
		m.span.SetStatus(codes.Error, m.errorStage)
	} else {
		m.span.SetStatus(codes.Ok, "")
	}
	m.span.End()

	if m.logger == nil {
		return
	}

	severityText, severityNumber := "INFO", 9
	if err != nil || m.errorStage != "" {
		severityText, severityNumber = "ERROR", 17
	}
	fields := log.Fields{
		"event.name":      tasksEventName,
		"event.domain":    tasksEventDomain,
		"attributes":      attrs,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}
	if sc := m.span.SpanContext(); sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
	}
	m.logger.WithFields(fields).Info("observability.event")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
