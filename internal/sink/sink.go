// Package sink defines where build diagnostics and status go. The composer
// and builders talk to a Sink; the CLI supplies a slog-backed implementation.
// Every failure path in the pipeline funnels through a Sink so the user
// always has visibility.
package sink

import (
	"log/slog"

	"texbuild/internal/logging"
	"texbuild/internal/state"
)

// Sink receives leveled messages, per-job diagnostics, and build status.
type Sink interface {
	Info(msg string)
	Warning(msg string)
	Error(msg string)
	ShowMessages(job string, messages []state.LogMessage)
	ShowStatus(status string)
}

// LoggerSink renders sink traffic through a slog logger.
type LoggerSink struct {
	logger *slog.Logger
}

// NewLoggerSink constructs a sink over the given logger.
func NewLoggerSink(logger *slog.Logger) *LoggerSink {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LoggerSink{logger: logger}
}

func (s *LoggerSink) Info(msg string)    { s.logger.Info(msg) }
func (s *LoggerSink) Warning(msg string) { s.logger.Warn(msg) }
func (s *LoggerSink) Error(msg string)   { s.logger.Error(msg) }

// ShowMessages renders each job diagnostic at its own severity.
func (s *LoggerSink) ShowMessages(job string, messages []state.LogMessage) {
	for _, msg := range messages {
		attrs := []logging.Attr{logging.String(logging.FieldJob, job)}
		if msg.File != "" {
			attrs = append(attrs, logging.String("file", msg.File))
		}
		if msg.Line > 0 {
			attrs = append(attrs, logging.Int("line", msg.Line))
		}
		if msg.EndLine > msg.Line {
			attrs = append(attrs, logging.Int("end_line", msg.EndLine))
		}
		args := logging.Args(attrs...)
		switch msg.Severity {
		case state.SeverityError:
			s.logger.Error(msg.Text, args...)
		case state.SeverityWarning:
			s.logger.Warn(msg.Text, args...)
		default:
			s.logger.Info(msg.Text, args...)
		}
	}
}

func (s *LoggerSink) ShowStatus(status string) {
	s.logger.Info("build status", logging.String("status", status))
}

var _ Sink = (*LoggerSink)(nil)
