package bridge

import (
	"context"
	"io"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/fsbridge/fsbridge/internal/callenv"
	"github.com/fsbridge/fsbridge/internal/metrics"
	"github.com/fsbridge/fsbridge/pkg/engine"
)

// DefaultPort is used when a connect call names a host but no port.
const DefaultPort uint16 = 8020

// FS is an opaque handle to one connected filesystem. A nil *FS is rejected
// by every operation with ENODEV.
type FS struct {
	fs engine.FileSystem
}

// File is an opaque handle to one open file. A nil *File is rejected with
// EBADF.
type File struct {
	f engine.File
}

var collector = metrics.NewCollector()

// Metrics returns the process-wide operation counters.
func Metrics() *metrics.Collector {
	return collector
}

// checkHandles validates the fs handle and, when file validation is
// requested, the file handle. The fs handle is checked first so a call with
// both handles nil reports ENODEV, not EBADF.
func checkHandles(env *callenv.Env, fs *FS, file *File, needFile bool) bool {
	if fs == nil {
		reportError(env, int(unix.ENODEV), "Cannot perform FS operations with null FS handle")
		return false
	}
	if needFile && file == nil {
		reportError(env, int(unix.EBADF), "Cannot perform FS operations with null File handle")
		return false
	}
	return true
}

// doConnect builds an engine from opts, attaches the calling thread's
// pending event callbacks, and connects. host and port are override
// pointers; with neither set the engine's configured default address is
// used. A partially constructed engine is closed on connect failure.
func doConnect(env *callenv.Env, host *string, port *uint16, user string, opts engine.Options) *FS {
	return guard(env, (*FS)(nil), func() *FS {
		collector.Operation("connect")
		if user == "" {
			user = opts.User
		}
		opts.User = user
		efs, err := engine.New(user, opts)
		if err != nil || efs == nil {
			collector.Failure("connect")
			reportError(env, int(unix.ENODEV), "Could not create FileSystem object")
			return nil
		}
		if env.FSCallback != nil {
			efs.SetFSEventCallback(env.FSCallback)
		}
		if env.FileCallback != nil {
			efs.SetFileEventCallback(env.FileCallback)
		}
		ctx := context.Background()
		if host != nil || port != nil {
			h := ""
			if host != nil {
				h = *host
			}
			p := DefaultPort
			if port != nil && *port != 0 {
				p = *port
			}
			err = efs.Connect(ctx, h, strconv.Itoa(int(p)))
		} else {
			err = efs.ConnectToDefault(ctx)
		}
		if err != nil {
			collector.Failure("connect")
			translateError(env, err)
			efs.Close()
			return nil
		}
		return &FS{fs: efs}
	})
}

// Connect connects to host:port with default options and the current user.
// Port 0 means DefaultPort. Returns nil on failure.
func Connect(host string, port uint16) *FS {
	return ConnectAsUser(host, port, "")
}

// ConnectAsUser is Connect with an explicit user identity.
func ConnectAsUser(host string, port uint16, user string) *FS {
	env := callenv.Current()
	return doConnect(env, &host, &port, user, defaultOptions())
}

// Disconnect tears down the connection and invalidates the handle. The
// handle must not be used again regardless of the return value.
func Disconnect(fs *FS) int {
	env := callenv.Current()
	return guard(env, -1, func() int {
		if fs == nil {
			reportError(env, int(unix.ENODEV), "Cannot disconnect null FS handle")
			return -1
		}
		efs := fs.fs
		fs.fs = nil
		if efs == nil {
			reportError(env, int(unix.ENODEV), "Cannot disconnect null FS handle")
			return -1
		}
		if err := efs.Close(); err != nil {
			return translateError(env, err)
		}
		return 0
	})
}

// OpenFile opens path for reading. The flags, bufferSize, replication and
// blockSize parameters are accepted for call-signature compatibility and
// ignored. Returns nil on failure.
func OpenFile(fs *FS, path string, flags int, bufferSize int, replication int16, blockSize int64) *File {
	env := callenv.Current()
	return guard(env, (*File)(nil), func() *File {
		collector.Operation("open")
		if !checkHandles(env, fs, nil, false) {
			collector.Failure("open")
			return nil
		}
		f, err := fs.fs.Open(context.Background(), path)
		if err != nil {
			collector.Failure("open")
			translateError(env, err)
			return nil
		}
		return &File{f: f}
	})
}

// CloseFile closes the file and invalidates the handle.
func CloseFile(fs *FS, file *File) int {
	env := callenv.Current()
	return guard(env, -1, func() int {
		if !checkHandles(env, fs, file, true) {
			return -1
		}
		f := file.f
		file.f = nil
		if f == nil {
			reportError(env, int(unix.EBADF), "Cannot perform FS operations with null File handle")
			return -1
		}
		if err := f.Close(); err != nil {
			return translateError(env, err)
		}
		return 0
	})
}

// Read reads up to len(buf) bytes from the file's current position,
// advancing it. Returns the byte count, which is short or zero at end of
// stream, or -1 on failure.
func Read(fs *FS, file *File, buf []byte) int {
	env := callenv.Current()
	return guard(env, -1, func() int {
		collector.Operation("read")
		if !checkHandles(env, fs, file, true) {
			collector.Failure("read")
			return -1
		}
		n, err := file.f.Read(context.Background(), buf)
		if err != nil {
			collector.Failure("read")
			return translateError(env, err)
		}
		collector.BytesRead(n)
		return n
	})
}

// Pread reads up to len(buf) bytes at position without moving the file
// position. Returns the byte count or -1 on failure.
func Pread(fs *FS, file *File, position int64, buf []byte) int {
	env := callenv.Current()
	return guard(env, -1, func() int {
		collector.Operation("pread")
		if !checkHandles(env, fs, file, true) {
			collector.Failure("pread")
			return -1
		}
		n, err := file.f.PositionRead(context.Background(), buf, position)
		if err != nil {
			collector.Failure("pread")
			return translateError(env, err)
		}
		collector.BytesRead(n)
		return n
	})
}

// Seek sets the file position to an absolute offset from the start.
func Seek(fs *FS, file *File, pos int64) int {
	env := callenv.Current()
	return guard(env, -1, func() int {
		if !checkHandles(env, fs, file, true) {
			return -1
		}
		if _, err := file.f.Seek(pos, io.SeekStart); err != nil {
			return translateError(env, err)
		}
		return 0
	})
}

// Tell returns the current file position, or -1 on failure.
func Tell(fs *FS, file *File) int64 {
	env := callenv.Current()
	return guard(env, int64(-1), func() int64 {
		if !checkHandles(env, fs, file, true) {
			return -1
		}
		pos, err := file.f.Seek(0, io.SeekCurrent)
		if err != nil {
			translateError(env, err)
			return -1
		}
		return pos
	})
}

// Cancel asks the engine to abort in-flight operations on the file. Blocked
// readers observe the abort as a failed call.
func Cancel(fs *FS, file *File) int {
	env := callenv.Current()
	return guard(env, -1, func() int {
		if !checkHandles(env, fs, file, true) {
			return -1
		}
		file.f.Cancel()
		return 0
	})
}

// FileIsOpenForRead reports whether the handle refers to a file open for
// reading. All files are opened read-only, so any valid handle qualifies.
func FileIsOpenForRead(file *File) int {
	if file == nil || file.f == nil {
		return 0
	}
	return 1
}

// GetPathInfo returns metadata for path, or nil on failure.
func GetPathInfo(fs *FS, path string) *engine.FileInfo {
	env := callenv.Current()
	return guard(env, (*engine.FileInfo)(nil), func() *engine.FileInfo {
		collector.Operation("stat")
		if !checkHandles(env, fs, nil, false) {
			collector.Failure("stat")
			return nil
		}
		info, err := fs.fs.Stat(context.Background(), path)
		if err != nil {
			collector.Failure("stat")
			translateError(env, err)
			return nil
		}
		return &info
	})
}

// ListDirectory returns the entries under path, or nil on failure. An empty
// directory yields an empty non-nil slice.
func ListDirectory(fs *FS, path string) []engine.FileInfo {
	env := callenv.Current()
	return guard(env, ([]engine.FileInfo)(nil), func() []engine.FileInfo {
		collector.Operation("list")
		if !checkHandles(env, fs, nil, false) {
			collector.Failure("list")
			return nil
		}
		infos, err := fs.fs.List(context.Background(), path)
		if err != nil {
			collector.Failure("list")
			translateError(env, err)
			return nil
		}
		if infos == nil {
			infos = []engine.FileInfo{}
		}
		return infos
	})
}
