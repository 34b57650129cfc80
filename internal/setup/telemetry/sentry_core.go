package telemetry

import (
	"fmt"
	"strings"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap/zapcore"
)

// SentryCore implements zapcore.Core and reports error entries to Sentry.
// Nothing is sent until sentry.Init has configured a client.
type SentryCore struct {
	zapcore.LevelEnabler
	fields []zapcore.Field
}

// NewSentryCore creates a new Core that forwards errors to Sentry.
func NewSentryCore(enab zapcore.LevelEnabler) *SentryCore {
	return &SentryCore{LevelEnabler: enab}
}

// With keeps fields so that named loggers carry their context into events.
func (c *SentryCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &SentryCore{LevelEnabler: c.LevelEnabler}
	clone.fields = append(append(clone.fields, c.fields...), fields...)
	return clone
}

// Check determines whether the supplied Entry should be logged.
func (c *SentryCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

// Write sends the entry as an exception event.
func (c *SentryCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	if sentry.CurrentHub().Client() == nil {
		return nil
	}

	extras, errs := encodeFields(append(c.fields[:len(c.fields):len(c.fields)], fields...))

	value := ent.Message
	if len(errs) > 0 {
		value = fmt.Sprintf("%s: %s", ent.Message, strings.Join(errs, "; "))
	}

	event := sentry.NewEvent()
	event.Level = sentryLevel(ent.Level)
	event.Message = ent.Message
	event.Logger = ent.LoggerName
	event.Extra = extras
	event.Exception = []sentry.Exception{{
		Type:       callerFunc(ent.Caller.Function),
		Module:     ent.Caller.TrimmedPath(),
		Value:      value,
		Stacktrace: sentry.NewStacktrace(),
	}}

	sentry.CaptureEvent(event)

	return nil
}

// Sync implements zapcore.Core.
func (c *SentryCore) Sync() error {
	return nil
}

// encodeFields flattens zap fields into a map and collects error messages
// separately.
func encodeFields(fields []zapcore.Field) (map[string]any, []string) {
	enc := zapcore.NewMapObjectEncoder()

	var errs []string
	for i := range fields {
		if fields[i].Type == zapcore.ErrorType {
			if err, ok := fields[i].Interface.(error); ok {
				errs = append(errs, err.Error())
				continue
			}
		}
		fields[i].AddTo(enc)
	}

	return enc.Fields, errs
}

func sentryLevel(level zapcore.Level) sentry.Level {
	switch {
	case level >= zapcore.DPanicLevel:
		return sentry.LevelFatal
	case level == zapcore.ErrorLevel:
		return sentry.LevelError
	case level == zapcore.WarnLevel:
		return sentry.LevelWarning
	case level == zapcore.DebugLevel:
		return sentry.LevelDebug
	default:
		return sentry.LevelInfo
	}
}

// callerFunc returns the bare function name of a fully qualified caller.
func callerFunc(function string) string {
	if i := strings.LastIndexByte(function, '/'); i >= 0 {
		function = function[i+1:]
	}
	if i := strings.IndexByte(function, '.'); i >= 0 {
		return function[i+1:]
	}
	return function
}
