package logging

import "log/slog"

// slogSink is the default sink, feeding the process slog logger the same way
// the engines would log if embedded standalone.
type slogSink struct{}

func (s *slogSink) Write(m *Message) {
	logger := slog.Default().With("component", m.Component.String())
	switch {
	case m.Level <= LevelDebug:
		logger.Debug(m.Text, "file", m.File, "line", m.Line)
	case m.Level == LevelInfo:
		logger.Info(m.Text)
	case m.Level == LevelWarn:
		logger.Warn(m.Text)
	default:
		logger.Error(m.Text, "file", m.File, "line", m.Line)
	}
}
