package otel

import (
	"context"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/swpuclaylee/APIFlask/internal/audit"
	"github.com/swpuclaylee/APIFlask/internal/audit/domain"
)

const instrumentationName = "apiflask.audit"

// NewAuditEmitter returns an audit.Emitter that mirrors audit events as OTel log records.
// A nil provider yields a no-op emitter.
func NewAuditEmitter(provider *sdklog.LoggerProvider) audit.Emitter {
	if provider == nil {
		return noopEmitter{}
	}
	return NewAuditEmitterWithLogger(provider.Logger(instrumentationName))
}

// RecordEmitter is the part of otellog.Logger used by the emitter.
type RecordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewAuditEmitterWithLogger returns an emitter writing to logger.
func NewAuditEmitterWithLogger(logger RecordEmitter) audit.Emitter {
	return &logEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.AuditLog) error { return nil }

type logEmitter struct {
	logger RecordEmitter
}

// Emit converts the audit entry to a log record. Empty fields are omitted.
func (e *logEmitter) Emit(ctx context.Context, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	var rec otellog.Record
	rec.SetTimestamp(entry.CreatedAt)
	rec.SetSeverity(otellog.SeverityInfo)
	if entry.Metadata != "" {
		rec.SetBody(otellog.StringValue(entry.Metadata))
	}
	for _, kv := range []struct{ key, value string }{
		{"event.name", "audit." + entry.Action},
		{"audit.id", entry.ID},
		{"user_id", entry.UserID},
		{"action", entry.Action},
		{"resource", entry.Resource},
		{"client.address", entry.IP},
	} {
		if kv.value != "" {
			rec.AddAttributes(otellog.String(kv.key, kv.value))
		}
	}
	e.logger.Emit(ctx, rec)
	return nil
}
