package alert

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Severity classifies an alert event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is a safety-relevant occurrence worth surfacing to an operator:
// a kill-switch trip, a daily stop, an unpaired arbitrage leg.
type Event struct {
	Severity Severity
	Title    string
	Message  string
	At       time.Time
}

// Sink delivers alert events. Implementations must never block the
// trading path on delivery; failures are logged, not propagated.
type Sink interface {
	Notify(ctx context.Context, ev Event)
}

// LogSink writes alerts to the structured log. Always available, used
// as the fallback when no webhook is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a log-backed sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Notify logs the event at a level matching its severity.
func (s *LogSink) Notify(_ context.Context, ev Event) {
	fields := []zap.Field{
		zap.String("title", ev.Title),
		zap.String("message", ev.Message),
		zap.Time("at", ev.At),
	}
	switch ev.Severity {
	case SeverityCritical:
		s.logger.Error("alert", fields...)
	case SeverityWarning:
		s.logger.Warn("alert", fields...)
	default:
		s.logger.Info("alert", fields...)
	}
}

// MultiSink fans one event out to several sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a fan-out sink.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Notify delivers the event to every sink.
func (m *MultiSink) Notify(ctx context.Context, ev Event) {
	for _, s := range m.sinks {
		s.Notify(ctx, ev)
	}
}
