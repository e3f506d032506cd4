package bridge

import (
	"github.com/fsbridge/fsbridge/internal/callenv"
	"github.com/fsbridge/fsbridge/pkg/engine"
	"github.com/fsbridge/fsbridge/pkg/status"
)

// Handler return codes. Anything other than these continues the operation.
const (
	// EventOK continues the operation that triggered the event.
	EventOK = 0

	// DebugSimulateError asks the engine to fail the triggering operation.
	// Honored only in builds with the faultinject tag; release builds treat
	// it as EventOK.
	DebugSimulateError = -1
)

// FSEventHandler observes filesystem-level lifecycle events. cookie is the
// caller-chosen value passed at registration.
type FSEventHandler func(event, cluster string, value int64, cookie int64) int

// FileEventHandler observes file-level lifecycle events.
type FileEventHandler func(event, cluster, path string, value int64, cookie int64) int

// PreAttachFSMonitor registers handler as the filesystem event callback for
// the next connect performed on the calling thread. The registration
// persists across connects on that thread until replaced. A nil handler
// clears it.
func PreAttachFSMonitor(handler FSEventHandler, cookie int64) int {
	env := callenv.Current()
	if handler == nil {
		env.FSCallback = nil
		return 0
	}
	env.FSCallback = func(event, cluster string, value int64) engine.EventResponse {
		return handlerResponse(handler(event, cluster, value, cookie))
	}
	return 0
}

// PreAttachFileMonitor is PreAttachFSMonitor for file-level events.
func PreAttachFileMonitor(handler FileEventHandler, cookie int64) int {
	env := callenv.Current()
	if handler == nil {
		env.FileCallback = nil
		return 0
	}
	env.FileCallback = func(event, cluster, path string, value int64) engine.EventResponse {
		return handlerResponse(handler(event, cluster, path, value, cookie))
	}
	return 0
}

func handlerResponse(code int) engine.EventResponse {
	if faultInjectionEnabled && code == DebugSimulateError {
		return engine.EventTestError(status.New(status.Exception, "Simulated error"))
	}
	return engine.EventOK()
}
