package fuse

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/fsbridge/fsbridge/internal/engine/memfs"
	"github.com/fsbridge/fsbridge/pkg/bridge"
	"github.com/fsbridge/fsbridge/pkg/engine"
)

// connectMem builds a handle backed by the in-memory engine.
func connectMem(t *testing.T) *bridge.FS {
	t.Helper()
	dir := t.TempDir()
	site := "fs:\n  engine: mem\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fsbridge-site.yaml"), []byte(site), 0o644))

	b := bridge.NewBuilderFromDirectory(dir)
	require.NotNil(t, b)
	handle := b.Connect()
	require.NotNil(t, handle)
	t.Cleanup(func() { bridge.Disconnect(handle) })
	return handle
}

func TestTranslateErrno(t *testing.T) {
	tests := []struct {
		name  string
		errno int
		want  syscall.Errno
	}{
		{"missing path reads as ENOENT", int(syscall.EINVAL), syscall.ENOENT},
		{"permission passes through", int(syscall.EACCES), syscall.EACCES},
		{"canceled passes through", int(syscall.EINTR), syscall.EINTR},
		{"engine unavailable becomes EIO", int(syscall.EAGAIN), syscall.EIO},
		{"anything else becomes EIO", int(syscall.ENOSYS), syscall.EIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, translateErrno(tt.errno))
		})
	}
}

func TestFillAttr(t *testing.T) {
	f := NewFileSystem(nil, &Config{UID: 1000, GID: 100, FileMode: 0o444, DirMode: 0o555})

	var out gofuse.Attr
	f.fillAttr(&engine.FileInfo{Path: "/f", Size: 42, ModTime: time.Unix(1700000000, 0)}, &out)
	assert.Equal(t, uint64(42), out.Size)
	assert.Equal(t, uint32(1000), out.Uid)
	assert.Equal(t, uint32(100), out.Gid)
	assert.Equal(t, uint64(1700000000), out.Mtime)
	assert.Equal(t, uint32(gofuse.S_IFREG|0o444), out.Mode)

	var dirOut gofuse.Attr
	f.fillAttr(&engine.FileInfo{Path: "/d", IsDir: true}, &dirOut)
	assert.Equal(t, uint32(gofuse.S_IFDIR|0o555), dirOut.Mode)
}

func TestCallRecordsErrors(t *testing.T) {
	handle := connectMem(t)
	f := NewFileSystem(handle, DefaultConfig(""))

	errno := f.call(func() bool {
		return bridge.GetPathInfo(handle, "/absent") != nil
	})
	assert.Equal(t, syscall.ENOENT, errno)
	assert.Equal(t, int64(1), f.GetStats().Errors)

	errno = f.call(func() bool { return true })
	assert.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, int64(1), f.GetStats().Errors)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/mnt/x")
	assert.Equal(t, "/mnt/x", cfg.MountPoint)
	assert.Equal(t, "fsbridge", cfg.FSName)
	assert.Equal(t, uint32(os.Getuid()), cfg.UID)
	assert.Equal(t, time.Second, cfg.AttrTimeout)
}

func TestMountManagerValidation(t *testing.T) {
	handle := connectMem(t)
	f := NewFileSystem(handle, DefaultConfig(""))

	m := NewMountManager(f, DefaultConfig(""))
	err := m.Mount(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid mount point")

	m = NewMountManager(f, DefaultConfig(filepath.Join(t.TempDir(), "missing")))
	require.Error(t, m.Mount(context.Background()))

	assert.False(t, m.IsMounted())
	require.Error(t, m.Unmount())
}
