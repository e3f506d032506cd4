package engine

// Lifecycle event names passed to registered event callbacks.
const (
	FSConnectEvent = "fs.connect"
	FSReadEvent    = "fs.read"
	FSWriteEvent   = "fs.write"

	FileConnectEvent = "file.connect"
	FileReadEvent    = "file.read"
	FileWriteEvent   = "file.write"
)

// EventResponse tells the engine whether to continue the operation that
// triggered the event. A zero EventResponse continues.
type EventResponse struct {
	err error
}

// EventOK continues the operation.
func EventOK() EventResponse {
	return EventResponse{}
}

// EventTestError asks the engine to fail the operation with err. Only used
// for fault injection in debug builds.
func EventTestError(err error) EventResponse {
	return EventResponse{err: err}
}

// Err returns the injected failure, or nil to continue.
func (r EventResponse) Err() error {
	return r.err
}

// FSEventCallback observes filesystem-level lifecycle events. The cluster
// argument identifies the remote endpoint the event refers to.
type FSEventCallback func(event, cluster string, value int64) EventResponse

// FileEventCallback observes file-level lifecycle events.
type FileEventCallback func(event, cluster, path string, value int64) EventResponse
