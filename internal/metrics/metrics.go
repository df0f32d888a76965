// Package metrics defines the measurement-save surface handed to handlers.
// It is an external-collaborator interface (spec.md §1): the real sink
// (InfluxDB, per original_source's influx_uri) is out of scope here, so this
// package only provides the interface plus a logging-backed default,
// mirroring original_source/kre-py/src/main.py's
// "self.handler_ctx.measurement.save(name, fields, tags)" call shape.
package metrics

import "go.uber.org/zap"

// Sink records one named measurement with its fields and tags. Save never
// returns an error: a metrics backend being unavailable must not fail the
// request it is measuring.
type Sink interface {
	Save(name string, fields map[string]any, tags map[string]string)
}

// LoggingSink writes every measurement as a structured log line. It's the
// default Sink when no production backend is configured — useful for local
// runs and tests, not a substitute for a real time-series store.
type LoggingSink struct {
	logger *zap.Logger
}

// NewLoggingSink builds a Sink backed by logger.
func NewLoggingSink(logger *zap.Logger) *LoggingSink {
	return &LoggingSink{logger: logger}
}

func (s *LoggingSink) Save(name string, fields map[string]any, tags map[string]string) {
	zapFields := make([]zap.Field, 0, len(fields)+len(tags)+1)
	zapFields = append(zapFields, zap.String("measurement", name))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	for k, v := range tags {
		zapFields = append(zapFields, zap.String(k, v))
	}
	s.logger.Info("measurement", zapFields...)
}
