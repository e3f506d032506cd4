package engine

import (
	"sync"

	"github.com/fsbridge/fsbridge/pkg/status"
)

// Factory constructs an unconnected FileSystem for the given user and
// options.
type Factory func(user string, opts Options) (FileSystem, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes an engine implementation available under a name, in the
// manner of database/sql drivers. Engines call it from init; registering the
// same name twice panics.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if factory == nil {
		panic("engine: Register with nil factory")
	}
	if _, dup := registry[name]; dup {
		panic("engine: Register called twice for " + name)
	}
	registry[name] = factory
}

// New constructs a FileSystem from the engine named in opts.Engine.
func New(user string, opts Options) (FileSystem, error) {
	registryMu.RLock()
	factory, ok := registry[opts.Engine]
	registryMu.RUnlock()
	if !ok {
		return nil, status.Newf(status.InvalidArgument, "unknown engine %q", opts.Engine)
	}
	return factory(user, opts)
}
