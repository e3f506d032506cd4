package bridge

import (
	"math/bits"

	"github.com/fsbridge/fsbridge/internal/logging"
)

// Log severities accepted by SetLoggingLevel, ordered least to most severe.
const (
	LogLevelTrace = int(logging.LevelTrace)
	LogLevelDebug = int(logging.LevelDebug)
	LogLevelInfo  = int(logging.LevelInfo)
	LogLevelWarn  = int(logging.LevelWarn)
	LogLevelError = int(logging.LevelError)
)

// Log components accepted by the component enablement calls. Each value is a
// single bit; combinations are rejected.
const (
	LogComponentUnknown     = int(logging.ComponentUnknown)
	LogComponentRPC         = int(logging.ComponentRPC)
	LogComponentBlockReader = int(logging.ComponentBlockReader)
	LogComponentFileHandle  = int(logging.ComponentFileHandle)
	LogComponentFileSystem  = int(logging.ComponentFileSystem)
)

// LogRecord is the boundary-safe form of one log message. Msg is a byte
// slice rather than a string so FreeLogRecord can scrub it.
type LogRecord struct {
	Level     int
	Component int
	Msg       []byte
	FileName  string
	FileLine  int
}

// LogFunction receives every admitted log message. The record is only valid
// for the duration of the call; use CopyLogRecord to retain it.
type LogFunction func(rec *LogRecord)

type forwardingSink struct {
	callback LogFunction
}

func (s *forwardingSink) Write(m *logging.Message) {
	if s.callback == nil {
		return
	}
	rec := LogRecord{
		Level:     int(m.Level),
		Component: int(m.Component),
		Msg:       []byte(m.Text),
		FileName:  m.File,
		FileLine:  m.Line,
	}
	s.callback(&rec)
}

// SetLogFunction installs callback as the destination for the engine log
// stream, replacing the default structured logger. A nil callback silences
// the stream; it does not restore the default.
func SetLogFunction(callback LogFunction) {
	logging.SetSink(&forwardingSink{callback: callback})
}

// CopyLogRecord returns a deep copy of rec with its own message storage.
// A nil rec yields nil.
func CopyLogRecord(rec *LogRecord) *LogRecord {
	if rec == nil {
		return nil
	}
	cp := &LogRecord{
		Level:     rec.Level,
		Component: rec.Component,
		FileName:  rec.FileName,
		FileLine:  rec.FileLine,
	}
	if rec.Msg != nil {
		cp.Msg = append([]byte(nil), rec.Msg...)
	}
	return cp
}

// FreeLogRecord scrubs the record's message bytes and zeroes its fields.
// A nil rec is a no-op.
func FreeLogRecord(rec *LogRecord) {
	if rec == nil {
		return
	}
	for i := range rec.Msg {
		rec.Msg[i] = 0
	}
	*rec = LogRecord{}
}

// SetLoggingLevel admits messages at or above level. Returns 1 for a level
// outside the known range, 0 otherwise.
func SetLoggingLevel(level int) int {
	if level < LogLevelTrace || level > LogLevelError {
		return 1
	}
	logging.SetLevel(logging.Level(level))
	return 0
}

// EnableLoggingForComponent admits messages from component. Returns 1 for a
// value that is not exactly one known component bit, 0 otherwise.
func EnableLoggingForComponent(component int) int {
	if !validComponent(component) {
		return 1
	}
	logging.EnableComponent(logging.Component(component))
	return 0
}

// DisableLoggingForComponent suppresses messages from component, under the
// same validation as EnableLoggingForComponent.
func DisableLoggingForComponent(component int) int {
	if !validComponent(component) {
		return 1
	}
	logging.DisableComponent(logging.Component(component))
	return 0
}

func validComponent(component int) bool {
	if component < LogComponentUnknown || component > LogComponentFileSystem {
		return false
	}
	return bits.OnesCount(uint(component)) == 1
}
