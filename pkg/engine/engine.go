// Package engine defines the contract between the boundary layer and the
// remote-filesystem client engines that perform actual connection management
// and data transfer. The boundary layer never reaches past these interfaces;
// engines never see the boundary's handles or per-thread state.
package engine

import (
	"context"
	"os"
	"time"
)

// Options is the finalized option set an engine is constructed with. It is
// derived from a configuration snapshot plus the builder's override fields
// and is consumed once per connect.
type Options struct {
	// Engine names the registered engine implementation to construct.
	Engine string

	// DefaultHost and DefaultPort describe the configured default address
	// used by ConnectToDefault.
	DefaultHost string
	DefaultPort uint16

	// User is the identity operations are performed as. Empty means the
	// engine's notion of the current user.
	User string

	ConnectTimeout time.Duration
	IOTimeout      time.Duration

	// Extra carries engine-specific keys lifted verbatim from the
	// configuration snapshot.
	Extra map[string]string
}

// FileInfo describes one remote file or directory.
type FileInfo struct {
	Path    string
	Size    int64
	Mode    os.FileMode
	ModTime time.Time
	IsDir   bool
	Owner   string
}

// FileSystem is one logical connection to a remote filesystem. Implementations
// decide their own thread-safety; the boundary layer adds no locking around
// them.
type FileSystem interface {
	// Connect establishes the connection to an explicit address.
	Connect(ctx context.Context, host, port string) error

	// ConnectToDefault connects to the address configured in the engine's
	// options.
	ConnectToDefault(ctx context.Context) error

	// Open opens the file at path for reading. End of stream is reported by
	// the File's read methods as a short (possibly zero) count, not an error.
	Open(ctx context.Context, path string) (File, error)

	Stat(ctx context.Context, path string) (FileInfo, error)
	List(ctx context.Context, path string) ([]FileInfo, error)

	// SetFSEventCallback and SetFileEventCallback install lifecycle-event
	// callbacks. They must be called before Connect.
	SetFSEventCallback(cb FSEventCallback)
	SetFileEventCallback(cb FileEventCallback)

	// Close releases the connection and every resource the engine holds.
	Close() error
}

// File is one open remote file.
type File interface {
	// PositionRead reads up to len(p) bytes at the given offset without
	// moving the file position. Returns the byte count, which is short at
	// end of stream.
	PositionRead(ctx context.Context, p []byte, offset int64) (int, error)

	// Read reads from the current position, advancing it.
	Read(ctx context.Context, p []byte) (int, error)

	// Seek repositions the file with io.Seek* whence semantics and returns
	// the resulting offset from the start.
	Seek(offset int64, whence int) (int64, error)

	// Cancel asks the engine to abort in-flight operations on this file.
	// Best effort; blocked calls observe the abort as an error return.
	Cancel()

	Close() error
}
