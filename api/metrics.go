package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName       = "github.com/andiegogiap/AI-WORKFLOW/api"
	observabilityMsg = "observability.event"
	eventDomain      = "workflow"

	attrTotalMs    = "workflow.request.total_ms"
	attrAuthMs     = "workflow.request.auth_ms"
	attrModelMs    = "workflow.request.model_ms"
	attrErrorStage = "workflow.request.error_stage"
)

// routeEvent names the span and event emitted for one instrumented route.
type routeEvent struct {
	route string
	span  string
	name  string
}

var (
	visualizeEvent = routeEvent{
		route: "/api/board/visualize",
		span:  "api.board.visualize",
		name:  "workflow.board.visualize",
	}
	elaborateEvent = routeEvent{
		route: "/api/board/phases/:phase/steps/:step/elaborate",
		span:  "api.board.elaborate",
		name:  "workflow.step.elaborate",
	}
)

// requestMetrics collects timings for a model-backed request and reports
// them once as a log entry and a span.
type requestMetrics struct {
	logger     *log.Logger
	span       trace.Span
	event      routeEvent
	start      time.Time
	auth       time.Duration
	model      time.Duration
	errorStage string
	attrs      map[string]any
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, ev routeEvent) (*requestMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, ev.span,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("http.route", ev.route)),
	)
	return &requestMetrics{
		logger: logger,
		span:   span,
		event:  ev,
		start:  time.Now(),
		attrs:  make(map[string]any),
	}, ctx
}

func (m *requestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.auth = d
	}
}

func (m *requestMetrics) ObserveModel(d time.Duration) {
	if d > 0 {
		m.model = d
	}
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Set records a route specific attribute. Supported values are string,
// bool, int, int64 and float64.
func (m *requestMetrics) Set(key string, value any) {
	m.attrs[key] = value
}

// Log ends the span and writes the observability event.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	defer m.span.End()

	attrs := map[string]any{
		"http.route":       m.event.route,
		"http.status_code": status,
		attrTotalMs:        durationToMillis(time.Since(m.start)),
	}
	if m.auth > 0 {
		attrs[attrAuthMs] = durationToMillis(m.auth)
	}
	if m.model > 0 {
		attrs[attrModelMs] = durationToMillis(m.model)
	}
	if m.errorStage != "" {
		attrs[attrErrorStage] = m.errorStage
	}
	for k, v := range m.attrs {
		attrs[k] = v
	}
	if err != nil {
		attrs["error.message"] = err.Error()
	}

	severityText, severityNumber := severityForStatus(status, err)

	spanAttrs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		if kv, ok := toAttribute(k, v); ok {
			spanAttrs = append(spanAttrs, kv)
		}
	}
	m.span.SetAttributes(spanAttrs...)
	m.span.AddEvent(observabilityMsg, trace.WithAttributes(append(spanAttrs,
		attribute.String("event.name", m.event.name),
		attribute.String("event.domain", eventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	)...))
	switch {
	case err != nil:
		m.span.RecordError(err)
		m.span.SetStatus(codes.Error, err.Error())
	case status >= http.StatusInternalServerError:
		m.span.SetStatus(codes.Error, http.StatusText(status))
	default:
		m.span.SetStatus(codes.Ok, "")
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      m.event.name,
		"event.domain":    eventDomain,
		"attributes":      attrs,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}
	if sc := m.span.SpanContext(); sc.IsValid() {
		fields["trace_id"] = sc.TraceID().String()
		fields["span_id"] = sc.SpanID().String()
	}
	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error(observabilityMsg)
	case "WARN":
		entry.Warn(observabilityMsg)
	default:
		entry.Info(observabilityMsg)
	}
}

// severityForStatus maps a response to OpenTelemetry log severity.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil && status < http.StatusBadRequest:
		return "ERROR", 17
	case status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func toAttribute(key string, v any) (attribute.KeyValue, bool) {
	switch val := v.(type) {
	case string:
		return attribute.String(key, val), true
	case bool:
		return attribute.Bool(key, val), true
	case int:
		return attribute.Int(key, val), true
	case int64:
		return attribute.Int64(key, val), true
	case float64:
		return attribute.Float64(key, val), true
	}
	return attribute.KeyValue{}, false
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
