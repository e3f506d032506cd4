// Package logging carries the engine-side structured log stream. Severity
// and per-component enablement are process-wide state; the active Sink is
// replaceable at runtime, which is how the boundary layer splices in its
// forwarding sink.
package logging

import (
	"fmt"
	"runtime"
	"sync"
)

// Level is the log severity. Values are ordered; SetLevel admits everything
// at or above the configured level.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// Component identifies the engine subsystem a message originates from.
// Values are single-bit flags so enablement composes into a mask.
type Component int

const (
	ComponentUnknown Component = 1 << iota
	ComponentRPC
	ComponentBlockReader
	ComponentFileHandle
	ComponentFileSystem
)

func (c Component) String() string {
	switch c {
	case ComponentUnknown:
		return "unknown"
	case ComponentRPC:
		return "rpc"
	case ComponentBlockReader:
		return "blockreader"
	case ComponentFileHandle:
		return "filehandle"
	case ComponentFileSystem:
		return "filesystem"
	}
	return fmt.Sprintf("component(%d)", int(c))
}

// Message is one structured log event handed to the Sink. Sinks must not
// retain the pointer past the Write call.
type Message struct {
	Level     Level
	Component Component
	Text      string
	File      string
	Line      int
}

// Sink receives every admitted log message.
type Sink interface {
	Write(m *Message)
}

var (
	mu      sync.Mutex
	level        = LevelInfo
	mask         = ComponentUnknown | ComponentRPC | ComponentBlockReader | ComponentFileHandle | ComponentFileSystem
	current Sink = &slogSink{}
)

// SetSink replaces the process-wide sink. Last write wins; there is no
// teardown besides replacement.
func SetSink(s Sink) {
	mu.Lock()
	defer mu.Unlock()
	if s == nil {
		s = &slogSink{}
	}
	current = s
}

// SetLevel sets the minimum admitted severity.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// EnableComponent admits messages from c.
func EnableComponent(c Component) {
	mu.Lock()
	defer mu.Unlock()
	mask |= c
}

// DisableComponent suppresses messages from c.
func DisableComponent(c Component) {
	mu.Lock()
	defer mu.Unlock()
	mask &^= c
}

// Logf emits a message if its level and component are currently admitted.
// The source location recorded is Logf's caller.
func Logf(l Level, c Component, format string, args ...interface{}) {
	mu.Lock()
	admitted := l >= level && mask&c != 0
	sink := current
	mu.Unlock()
	if !admitted {
		return
	}

	_, file, line, _ := runtime.Caller(1)
	m := Message{
		Level:     l,
		Component: c,
		Text:      fmt.Sprintf(format, args...),
		File:      file,
		Line:      line,
	}
	sink.Write(&m)
}
