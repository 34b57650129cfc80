package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"
)

// OtelCore implements zapcore.Core and records error entries as spans so
// they show up next to traced database queries.
type OtelCore struct {
	zapcore.LevelEnabler
	tracer trace.Tracer
	fields []zapcore.Field
}

// NewOtelCore creates a new core that forwards logs to OpenTelemetry.
func NewOtelCore(enab zapcore.LevelEnabler) *OtelCore {
	return &OtelCore{
		LevelEnabler: enab,
		tracer:       otel.Tracer("github.com/dokkuadmin/banflow/logs"),
	}
}

func (c *OtelCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &OtelCore{LevelEnabler: c.LevelEnabler, tracer: c.tracer}
	clone.fields = append(append(clone.fields, c.fields...), fields...)
	return clone
}

func (c *OtelCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *OtelCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	_, span := c.tracer.Start(context.Background(), "log."+category(ent.LoggerName))
	defer span.End()

	extras, errs := encodeFields(append(c.fields[:len(c.fields):len(c.fields)], fields...))

	attrs := make([]attribute.KeyValue, 0, len(extras)+3)
	attrs = append(attrs,
		attribute.String("log.message", ent.Message),
		attribute.String("log.level", ent.Level.String()),
		attribute.String("log.caller", ent.Caller.TrimmedPath()),
	)
	for key, value := range extras {
		attrs = append(attrs, attribute.String("log.field."+key, fmt.Sprint(value)))
	}

	span.SetAttributes(attrs...)
	span.SetStatus(codes.Error, strings.Join(append([]string{ent.Message}, errs...), ": "))

	return nil
}

func (c *OtelCore) Sync() error {
	return nil
}

// category is the first segment of a named logger, e.g. "workflow" for
// "workflow.gateway".
func category(loggerName string) string {
	if loggerName == "" {
		return "application"
	}
	if i := strings.IndexByte(loggerName, '.'); i >= 0 {
		return loggerName[:i]
	}
	return loggerName
}
