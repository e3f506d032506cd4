// Package memfs provides an in-memory engine. It exists for deterministic
// tests of the boundary layer and for embedding hosts that want a loopback
// filesystem; it is registered under the name "mem".
package memfs

import (
	"context"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsbridge/fsbridge/internal/logging"
	"github.com/fsbridge/fsbridge/pkg/engine"
	"github.com/fsbridge/fsbridge/pkg/status"
)

func init() {
	engine.Register("mem", New)
}

// Extra key that makes every connect attempt fail, for exercising the
// boundary layer's failure paths.
const KeyFailConnect = "fs.mem.connect.fail"

type entry struct {
	data    []byte
	modTime time.Time
}

// FileSystem is the in-memory engine. Safe for concurrent use.
type FileSystem struct {
	user string
	opts engine.Options

	mu        sync.Mutex
	files     map[string]*entry
	cluster   string
	connected bool
	closed    bool

	fsCB   engine.FSEventCallback
	fileCB engine.FileEventCallback
}

// New constructs an unconnected in-memory filesystem.
func New(user string, opts engine.Options) (engine.FileSystem, error) {
	return &FileSystem{
		user:  user,
		opts:  opts,
		files: make(map[string]*entry),
	}, nil
}

// Put seeds or replaces a file. Paths are cleaned to absolute form.
func (f *FileSystem) Put(p string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[clean(p)] = &entry{data: append([]byte(nil), data...), modTime: time.Now()}
}

func clean(p string) string {
	p = path.Clean("/" + p)
	return p
}

func (f *FileSystem) SetFSEventCallback(cb engine.FSEventCallback) {
	f.fsCB = cb
}

func (f *FileSystem) SetFileEventCallback(cb engine.FileEventCallback) {
	f.fileCB = cb
}

func (f *FileSystem) Connect(ctx context.Context, host, port string) error {
	return f.connect(host + ":" + port)
}

func (f *FileSystem) ConnectToDefault(ctx context.Context) error {
	host := f.opts.DefaultHost
	if host == "" {
		host = "mem"
	}
	return f.connect(host)
}

func (f *FileSystem) connect(cluster string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return status.New(status.InvalidArgument, "filesystem is closed")
	}
	if f.opts.Extra[KeyFailConnect] == "true" {
		return status.Newf(status.ResourceUnavailable, "connection to %s refused", cluster)
	}
	f.cluster = cluster
	f.connected = true

	if f.fsCB != nil {
		if resp := f.fsCB(engine.FSConnectEvent, cluster, 0); resp.Err() != nil {
			f.connected = false
			return resp.Err()
		}
	}
	logging.Logf(logging.LevelInfo, logging.ComponentFileSystem, "memfs connected to %s", cluster)
	return nil
}

func (f *FileSystem) Open(ctx context.Context, p string) (engine.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, status.New(status.InvalidArgument, "filesystem is not connected")
	}
	p = clean(p)
	e, ok := f.files[p]
	if !ok {
		return nil, status.Newf(status.InvalidArgument, "no such file: %s", p)
	}

	if f.fileCB != nil {
		if resp := f.fileCB(engine.FileConnectEvent, f.cluster, p, 0); resp.Err() != nil {
			return nil, resp.Err()
		}
	}
	logging.Logf(logging.LevelDebug, logging.ComponentFileHandle, "memfs opened %s", p)
	return &file{path: p, data: e.data, cluster: f.cluster, cb: f.fileCB}, nil
}

func (f *FileSystem) Stat(ctx context.Context, p string) (engine.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return engine.FileInfo{}, status.New(status.InvalidArgument, "filesystem is not connected")
	}
	p = clean(p)
	if e, ok := f.files[p]; ok {
		return engine.FileInfo{
			Path:    p,
			Size:    int64(len(e.data)),
			Mode:    0o644,
			ModTime: e.modTime,
			Owner:   f.user,
		}, nil
	}
	if f.hasPrefixLocked(p) {
		return engine.FileInfo{Path: p, Mode: 0o755, IsDir: true, Owner: f.user}, nil
	}
	return engine.FileInfo{}, status.Newf(status.InvalidArgument, "no such path: %s", p)
}

func (f *FileSystem) List(ctx context.Context, p string) ([]engine.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, status.New(status.InvalidArgument, "filesystem is not connected")
	}
	p = clean(p)
	if _, ok := f.files[p]; ok {
		return nil, status.Newf(status.InvalidArgument, "not a directory: %s", p)
	}
	if p != "/" && !f.hasPrefixLocked(p) {
		return nil, status.Newf(status.InvalidArgument, "no such path: %s", p)
	}

	prefix := p
	if prefix != "/" {
		prefix += "/"
	}
	children := make(map[string]engine.FileInfo)
	for name, e := range f.files {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(name, prefix)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			dir := prefix + rest[:i]
			children[dir] = engine.FileInfo{Path: dir, Mode: 0o755, IsDir: true, Owner: f.user}
			continue
		}
		children[name] = engine.FileInfo{
			Path:    name,
			Size:    int64(len(e.data)),
			Mode:    0o644,
			ModTime: e.modTime,
			Owner:   f.user,
		}
	}

	out := make([]engine.FileInfo, 0, len(children))
	for _, fi := range children {
		out = append(out, fi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (f *FileSystem) hasPrefixLocked(p string) bool {
	prefix := p + "/"
	for name := range f.files {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func (f *FileSystem) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.closed = true
	return nil
}

// cluster and cb are captured under the filesystem lock at Open so event
// delivery never races a concurrent reconnect.
type file struct {
	path    string
	data    []byte
	cluster string
	cb      engine.FileEventCallback

	mu       sync.Mutex
	pos      int64
	canceled bool
}

func (fl *file) PositionRead(ctx context.Context, p []byte, offset int64) (int, error) {
	fl.mu.Lock()
	canceled := fl.canceled
	fl.mu.Unlock()
	if canceled {
		return 0, status.Newf(status.OperationCanceled, "read canceled on %s", fl.path)
	}
	if offset < 0 {
		return 0, status.New(status.InvalidArgument, "negative read offset")
	}
	n := 0
	if offset < int64(len(fl.data)) {
		n = copy(p, fl.data[offset:])
	}
	fl.event(engine.FileReadEvent, int64(n))
	return n, nil
}

func (fl *file) Read(ctx context.Context, p []byte) (int, error) {
	fl.mu.Lock()
	pos := fl.pos
	fl.mu.Unlock()

	n, err := fl.PositionRead(ctx, p, pos)
	if err != nil {
		return 0, err
	}

	fl.mu.Lock()
	fl.pos = pos + int64(n)
	fl.mu.Unlock()
	return n, nil
}

func (fl *file) Seek(offset int64, whence int) (int64, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = fl.pos + offset
	case io.SeekEnd:
		next = int64(len(fl.data)) + offset
	default:
		return 0, status.New(status.InvalidArgument, "invalid whence")
	}
	if next < 0 {
		return 0, status.New(status.InvalidArgument, "seek before start of file")
	}
	fl.pos = next
	return next, nil
}

func (fl *file) Cancel() {
	fl.mu.Lock()
	fl.canceled = true
	fl.mu.Unlock()
}

func (fl *file) Close() error {
	return nil
}

func (fl *file) event(name string, value int64) {
	if fl.cb != nil {
		fl.cb(name, fl.cluster, fl.path, value)
	}
}
