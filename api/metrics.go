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
	writeSpanName    = "taskboard.write"
	writeEventName   = "taskboard.write.request"
	writeEventDomain = "taskboard"
)

// writeRequestMetrics collects per-stage timings for a write request and
// emits them once, as a structured observability.event log entry bound to
// an OpenTelemetry span. A nil receiver is a no-op so lightly instrumented
// handlers can share the failure helpers.
type writeRequestMetrics struct {
	logger *log.Logger
	route  string
	span   trace.Span
	start  time.Time

	authDuration     time.Duration
	validateDuration time.Duration
	persistDuration  time.Duration
	encodeDuration   time.Duration
	errorStage       string
	errorCode        string
}

func newWriteRequestMetrics(ctx context.Context, logger *log.Logger, route string) (*writeRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer("taskboard-api/api").Start(ctx, writeSpanName)
	m := &writeRequestMetrics{
		logger: logger,
		route:  route,
		span:   span,
		start:  time.Now(),
	}
	return m, spanCtx
}

func (m *writeRequestMetrics) ObserveAuth(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.authDuration = duration
}

func (m *writeRequestMetrics) ObserveValidate(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.validateDuration = duration
}

func (m *writeRequestMetrics) ObservePersist(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.persistDuration = duration
}

func (m *writeRequestMetrics) ObserveEncode(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *writeRequestMetrics) SetErrorStage(stage string) {
	if m == nil || stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *writeRequestMetrics) SetErrorCode(code string) {
	if m == nil || code == "" {
		return
	}
	m.errorCode = code
}

func (m *writeRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.Int("http.status_code", status),
		attribute.Float64("taskboard.write.total_ms", durationToMillis(time.Since(m.start))),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64("taskboard.write.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.validateDuration > 0 {
		attrs = append(attrs, attribute.Float64("taskboard.write.validate_ms", durationToMillis(m.validateDuration)))
	}
	if m.persistDuration > 0 {
		attrs = append(attrs, attribute.Float64("taskboard.write.persist_ms", durationToMillis(m.persistDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("taskboard.write.encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("taskboard.write.error_stage", m.errorStage))
	}
	if m.errorCode != "" {
		attrs = append(attrs, attribute.String("taskboard.write.error_code", m.errorCode))
	}

	failed := err != nil || m.errorStage != ""

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		if failed {
			msg := m.errorStage
			if err != nil {
				msg = err.Error()
				m.span.RecordError(err)
			}
			m.span.SetStatus(codes.Error, msg)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.AddEvent("observability.event", trace.WithAttributes(attrs...))
	}

	if m.logger != nil {
		attrMap := make(map[string]any, len(attrs))
		for _, kv := range attrs {
			attrMap[string(kv.Key)] = kv.Value.AsInterface()
		}
		fields := log.Fields{
			"event.name":      writeEventName,
			"event.domain":    writeEventDomain,
			"attributes":      attrMap,
			"severity_text":   "INFO",
			"severity_number": 9,
		}
		if failed {
			fields["severity_text"] = "ERROR"
			fields["severity_number"] = 17
			if err != nil {
				fields["error"] = err.Error()
			}
		}
		if m.span != nil {
			if sc := m.span.SpanContext(); sc.HasTraceID() {
				fields["trace_id"] = sc.TraceID().String()
			}
		}
		entry := m.logger.WithFields(fields)
		if failed {
			entry.Error("observability.event")
		} else {
			entry.Info("observability.event")
		}
	}

	if m.span != nil {
		m.span.End()
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
