package fuse

import (
	"context"
	"os"
	"path"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/fsbridge/fsbridge/internal/logging"
	"github.com/fsbridge/fsbridge/pkg/bridge"
	"github.com/fsbridge/fsbridge/pkg/engine"
)

// Config controls how the mounted tree presents itself.
type Config struct {
	MountPoint   string        `yaml:"mount_point"`
	FSName       string        `yaml:"fsname"`
	Debug        bool          `yaml:"debug"`
	AllowOther   bool          `yaml:"allow_other"`
	AttrTimeout  time.Duration `yaml:"attr_timeout"`
	EntryTimeout time.Duration `yaml:"entry_timeout"`

	// Ownership and modes reported for every entry; the remote side's
	// notion of ownership does not map onto local uids.
	UID      uint32 `yaml:"uid"`
	GID      uint32 `yaml:"gid"`
	FileMode uint32 `yaml:"file_mode"`
	DirMode  uint32 `yaml:"dir_mode"`
}

// DefaultConfig returns a Config mounting read-only with the calling
// user's identity.
func DefaultConfig(mountPoint string) *Config {
	return &Config{
		MountPoint:   mountPoint,
		FSName:       "fsbridge",
		AttrTimeout:  time.Second,
		EntryTimeout: time.Second,
		UID:          uint32(os.Getuid()),
		GID:          uint32(os.Getgid()),
		FileMode:     0o444,
		DirMode:      0o555,
	}
}

// Stats counts the kernel requests served since mount.
type Stats struct {
	mu        sync.Mutex
	Lookups   int64
	Opens     int64
	Reads     int64
	BytesRead int64
	Errors    int64
}

func (s *Stats) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Lookups:   s.Lookups,
		Opens:     s.Opens,
		Reads:     s.Reads,
		BytesRead: s.BytesRead,
		Errors:    s.Errors,
	}
}

// FileSystem adapts one connected handle to the kernel's FUSE protocol.
type FileSystem struct {
	handle *bridge.FS
	config *Config
	stats  *Stats
}

// NewFileSystem wraps an already connected handle. The adapter does not own
// the handle; disconnecting it is the caller's job after unmount.
func NewFileSystem(handle *bridge.FS, config *Config) *FileSystem {
	if config == nil {
		config = DefaultConfig("")
	}
	return &FileSystem{handle: handle, config: config, stats: &Stats{}}
}

// Root returns the root directory node.
func (f *FileSystem) Root() fs.InodeEmbedder {
	return &DirectoryNode{fs: f, path: "/"}
}

// GetStats returns a copy of the request counters.
func (f *FileSystem) GetStats() Stats {
	return f.stats.snapshot()
}

// call runs one boundary operation pinned to the current OS thread and
// returns the translated errno of a failed call. Pinning keeps the
// per-thread last-error lookup on the thread that recorded it.
func (f *FileSystem) call(op func() bool) syscall.Errno {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if op() {
		return 0
	}
	f.stats.mu.Lock()
	f.stats.Errors++
	f.stats.mu.Unlock()
	return translateErrno(bridge.LastErrno())
}

// translateErrno maps the boundary layer's errno onto what the kernel
// expects. Engines report a missing path as an invalid argument, which on
// a lookup path means ENOENT.
func translateErrno(errno int) syscall.Errno {
	switch errno {
	case int(syscall.EINVAL):
		return syscall.ENOENT
	case int(syscall.EACCES):
		return syscall.EACCES
	case int(syscall.EINTR):
		return syscall.EINTR
	}
	return syscall.EIO
}

func (f *FileSystem) fillAttr(info *engine.FileInfo, out *fuse.Attr) {
	if info.IsDir {
		out.Mode = fuse.S_IFDIR | f.config.DirMode
	} else {
		out.Mode = fuse.S_IFREG | f.config.FileMode
	}
	if info.Size > 0 {
		out.Size = uint64(info.Size)
	}
	out.Uid = f.config.UID
	out.Gid = f.config.GID
	if !info.ModTime.IsZero() {
		t := info.ModTime.Unix()
		if t > 0 {
			out.Mtime = uint64(t)
			out.Atime = uint64(t)
			out.Ctime = uint64(t)
		}
	}
}

// DirectoryNode is one remote directory.
type DirectoryNode struct {
	fs.Inode
	fs   *FileSystem
	path string
}

var _ fs.NodeLookuper = (*DirectoryNode)(nil)
var _ fs.NodeReaddirer = (*DirectoryNode)(nil)
var _ fs.NodeGetattrer = (*DirectoryNode)(nil)

func (n *DirectoryNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	n.fs.stats.mu.Lock()
	n.fs.stats.Lookups++
	n.fs.stats.mu.Unlock()

	childPath := path.Join(n.path, name)
	var info *engine.FileInfo
	if errno := n.fs.call(func() bool {
		info = bridge.GetPathInfo(n.fs.handle, childPath)
		return info != nil
	}); errno != 0 {
		return nil, errno
	}

	n.fs.fillAttr(info, &out.Attr)
	if info.IsDir {
		child := n.NewInode(ctx, &DirectoryNode{fs: n.fs, path: childPath}, fs.StableAttr{Mode: fuse.S_IFDIR})
		return child, 0
	}
	child := n.NewInode(ctx, &FileNode{fs: n.fs, path: childPath, size: info.Size}, fs.StableAttr{Mode: fuse.S_IFREG})
	return child, 0
}

func (n *DirectoryNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	var infos []engine.FileInfo
	if errno := n.fs.call(func() bool {
		infos = bridge.ListDirectory(n.fs.handle, n.path)
		return infos != nil
	}); errno != 0 {
		return nil, errno
	}

	entries := make([]fuse.DirEntry, 0, len(infos))
	for _, info := range infos {
		mode := uint32(fuse.S_IFREG)
		if info.IsDir {
			mode = fuse.S_IFDIR
		}
		entries = append(entries, fuse.DirEntry{
			Name: path.Base(info.Path),
			Mode: mode,
		})
	}
	return fs.NewListDirStream(entries), 0
}

func (n *DirectoryNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = fuse.S_IFDIR | n.fs.config.DirMode
	out.Uid = n.fs.config.UID
	out.Gid = n.fs.config.GID
	return 0
}

// FileNode is one remote file.
type FileNode struct {
	fs.Inode
	fs   *FileSystem
	path string
	size int64
}

var _ fs.NodeOpener = (*FileNode)(nil)
var _ fs.NodeGetattrer = (*FileNode)(nil)

func (f *FileNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}

	f.fs.stats.mu.Lock()
	f.fs.stats.Opens++
	f.fs.stats.mu.Unlock()

	var file *bridge.File
	if errno := f.fs.call(func() bool {
		file = bridge.OpenFile(f.fs.handle, f.path, os.O_RDONLY, 0, 0, 0)
		return file != nil
	}); errno != 0 {
		return nil, 0, errno
	}
	return &FileHandle{fs: f.fs, path: f.path, file: file}, fuse.FOPEN_KEEP_CACHE, 0
}

func (f *FileNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	var info *engine.FileInfo
	if errno := f.fs.call(func() bool {
		info = bridge.GetPathInfo(f.fs.handle, f.path)
		return info != nil
	}); errno != 0 {
		return errno
	}
	f.fs.fillAttr(info, &out.Attr)
	return 0
}

// FileHandle is one open kernel file handle.
type FileHandle struct {
	fs   *FileSystem
	path string
	file *bridge.File
}

var _ fs.FileReader = (*FileHandle)(nil)
var _ fs.FileReleaser = (*FileHandle)(nil)

func (h *FileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	h.fs.stats.mu.Lock()
	h.fs.stats.Reads++
	h.fs.stats.mu.Unlock()

	n := -1
	if errno := h.fs.call(func() bool {
		n = bridge.Pread(h.fs.handle, h.file, off, dest)
		return n >= 0
	}); errno != 0 {
		logging.Logf(logging.LevelWarn, logging.ComponentFileHandle, "fuse read %s at %d failed", h.path, off)
		return nil, errno
	}

	h.fs.stats.mu.Lock()
	h.fs.stats.BytesRead += int64(n)
	h.fs.stats.mu.Unlock()
	return fuse.ReadResultData(dest[:n]), 0
}

func (h *FileHandle) Release(ctx context.Context) syscall.Errno {
	return h.fs.call(func() bool {
		return bridge.CloseFile(h.fs.handle, h.file) == 0
	})
}
