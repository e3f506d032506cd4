package bridge

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/fsbridge/fsbridge/internal/engine/memfs"
	"github.com/fsbridge/fsbridge/pkg/engine"
)

func init() {
	engine.Register("panics", func(user string, opts engine.Options) (engine.FileSystem, error) {
		panic(errors.New("factory blew up"))
	})
}

// lockThread pins the test to one OS thread so per-thread error state is
// observable across calls.
func lockThread(t *testing.T) {
	t.Helper()
	runtime.LockOSThread()
	t.Cleanup(runtime.UnlockOSThread)
}

// writeSiteConfig drops a site resource selecting the in-memory engine into
// a fresh directory and returns the directory.
func writeSiteConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := "fs:\n  engine: mem\n" + extra
	err := os.WriteFile(filepath.Join(dir, "fsbridge-site.yaml"), []byte(content), 0o644)
	require.NoError(t, err)
	return dir
}

// connectMem connects through a builder backed by the in-memory engine and
// returns the handle plus the engine underneath it for seeding files.
func connectMem(t *testing.T) (*FS, *memfs.FileSystem) {
	t.Helper()
	b := NewBuilderFromDirectory(writeSiteConfig(t, ""))
	require.NotNil(t, b)
	fs := b.Connect()
	require.NotNil(t, fs, "last error: %s", lastErrorText())
	t.Cleanup(func() { Disconnect(fs) })
	mfs, ok := fs.fs.(*memfs.FileSystem)
	require.True(t, ok)
	return fs, mfs
}

func lastErrorText() string {
	buf := make([]byte, 256)
	GetLastError(buf)
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}

func TestReadLifecycle(t *testing.T) {
	fs, mfs := connectMem(t)
	mfs.Put("/data/greeting.txt", []byte("hello, bridge"))

	file := OpenFile(fs, "/data/greeting.txt", os.O_RDONLY, 0, 0, 0)
	require.NotNil(t, file)
	assert.Equal(t, 1, FileIsOpenForRead(file))

	buf := make([]byte, 5)
	n := Read(fs, file, buf)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))
	assert.Equal(t, int64(5), Tell(fs, file))

	// Short read at end of stream is a success, not an error.
	rest := make([]byte, 64)
	n = Read(fs, file, rest)
	assert.Equal(t, 8, n)
	assert.Equal(t, ", bridge", string(rest[:n]))
	n = Read(fs, file, rest)
	assert.Equal(t, 0, n)

	assert.Equal(t, 0, CloseFile(fs, file))
}

func TestPreadDoesNotMovePosition(t *testing.T) {
	fs, mfs := connectMem(t)
	mfs.Put("/f", []byte("0123456789"))

	file := OpenFile(fs, "/f", os.O_RDONLY, 0, 0, 0)
	require.NotNil(t, file)
	defer CloseFile(fs, file)

	buf := make([]byte, 4)
	n := Pread(fs, file, 6, buf)
	assert.Equal(t, 4, n)
	assert.Equal(t, "6789", string(buf))
	assert.Equal(t, int64(0), Tell(fs, file))
}

func TestSeekAndTell(t *testing.T) {
	fs, mfs := connectMem(t)
	mfs.Put("/f", []byte("0123456789"))

	file := OpenFile(fs, "/f", os.O_RDONLY, 0, 0, 0)
	require.NotNil(t, file)
	defer CloseFile(fs, file)

	assert.Equal(t, 0, Seek(fs, file, 7))
	assert.Equal(t, int64(7), Tell(fs, file))

	buf := make([]byte, 8)
	n := Read(fs, file, buf)
	assert.Equal(t, 3, n)
	assert.Equal(t, "789", string(buf[:n]))
}

func TestSeekNegativeFails(t *testing.T) {
	lockThread(t)
	fs, mfs := connectMem(t)
	mfs.Put("/f", []byte("x"))

	file := OpenFile(fs, "/f", os.O_RDONLY, 0, 0, 0)
	require.NotNil(t, file)
	defer CloseFile(fs, file)

	assert.Equal(t, -1, Seek(fs, file, -3))
	assert.Equal(t, int(unix.EINVAL), LastErrno())
}

func TestCancelFailsSubsequentReads(t *testing.T) {
	lockThread(t)
	fs, mfs := connectMem(t)
	mfs.Put("/f", []byte("payload"))

	file := OpenFile(fs, "/f", os.O_RDONLY, 0, 0, 0)
	require.NotNil(t, file)
	defer CloseFile(fs, file)

	assert.Equal(t, 0, Cancel(fs, file))
	assert.Equal(t, -1, Read(fs, file, make([]byte, 4)))
	assert.Equal(t, int(unix.EINTR), LastErrno())
	assert.Contains(t, lastErrorText(), "canceled")
}

func TestOpenMissingFile(t *testing.T) {
	lockThread(t)
	fs, _ := connectMem(t)

	file := OpenFile(fs, "/nope", os.O_RDONLY, 0, 0, 0)
	assert.Nil(t, file)
	assert.Equal(t, int(unix.EINVAL), LastErrno())
	assert.Contains(t, lastErrorText(), "no such file")
	assert.Equal(t, 0, FileIsOpenForRead(file))
}

func TestNullHandleChecks(t *testing.T) {
	lockThread(t)
	fs, mfs := connectMem(t)
	mfs.Put("/f", []byte("x"))
	file := OpenFile(fs, "/f", os.O_RDONLY, 0, 0, 0)
	require.NotNil(t, file)
	defer CloseFile(fs, file)

	buf := make([]byte, 4)
	tests := []struct {
		name      string
		call      func() int
		wantErrno int
	}{
		{"read nil fs", func() int { return Read(nil, file, buf) }, int(unix.ENODEV)},
		{"read nil file", func() int { return Read(fs, nil, buf) }, int(unix.EBADF)},
		{"read both nil", func() int { return Read(nil, nil, buf) }, int(unix.ENODEV)},
		{"pread nil file", func() int { return Pread(fs, nil, 0, buf) }, int(unix.EBADF)},
		{"seek nil fs", func() int { return Seek(nil, file, 0) }, int(unix.ENODEV)},
		{"tell nil file", func() int { return int(Tell(fs, nil)) }, int(unix.EBADF)},
		{"cancel nil file", func() int { return Cancel(fs, nil) }, int(unix.EBADF)},
		{"close nil file", func() int { return CloseFile(fs, nil) }, int(unix.EBADF)},
		{"close nil fs", func() int { return CloseFile(nil, file) }, int(unix.ENODEV)},
		{"disconnect nil", func() int { return Disconnect(nil) }, int(unix.ENODEV)},
	}
	// Subtests would hop goroutines and lose the per-thread error state, so
	// the cases run inline.
	for _, tt := range tests {
		assert.Equal(t, -1, tt.call(), tt.name)
		assert.Equal(t, tt.wantErrno, LastErrno(), tt.name)
	}

	assert.Nil(t, OpenFile(nil, "/f", os.O_RDONLY, 0, 0, 0))
	assert.Equal(t, int(unix.ENODEV), LastErrno())
	assert.Nil(t, GetPathInfo(nil, "/f"))
	assert.Nil(t, ListDirectory(nil, "/"))
}

func TestDisconnectTwice(t *testing.T) {
	lockThread(t)
	b := NewBuilderFromDirectory(writeSiteConfig(t, ""))
	require.NotNil(t, b)
	fs := b.Connect()
	require.NotNil(t, fs)

	assert.Equal(t, 0, Disconnect(fs))
	assert.Equal(t, -1, Disconnect(fs))
	assert.Equal(t, int(unix.ENODEV), LastErrno())
	assert.Contains(t, lastErrorText(), "null FS handle")
}

func TestConnectUnknownEngine(t *testing.T) {
	lockThread(t)
	fs := Connect("localhost", 0)
	assert.Nil(t, fs)
	assert.Equal(t, int(unix.ENODEV), LastErrno())
	assert.Equal(t, "Could not create FileSystem object", lastErrorText())
}

func TestConnectRefused(t *testing.T) {
	lockThread(t)
	b := NewBuilderFromDirectory(writeSiteConfig(t, "  mem:\n    connect:\n      fail: \"true\"\n"))
	require.NotNil(t, b)

	fs := b.Connect()
	assert.Nil(t, fs)
	assert.Equal(t, int(unix.EAGAIN), LastErrno())
	assert.Contains(t, lastErrorText(), "refused")
}

func TestConnectPanickingFactory(t *testing.T) {
	lockThread(t)
	b := NewBuilderFromDirectory(t.TempDir())
	require.NotNil(t, b)
	require.Equal(t, 0, b.ConfSetString("fs.engine", "panics"))

	fs := b.Connect()
	assert.Nil(t, fs)
	assert.Equal(t, int(unix.EINTR), LastErrno())
	assert.Contains(t, lastErrorText(), "Uncaught exception")
	assert.Contains(t, lastErrorText(), "factory blew up")
}

func TestGetLastErrorTruncation(t *testing.T) {
	lockThread(t)
	Disconnect(nil) // records "Cannot disconnect null FS handle"

	buf := make([]byte, 8)
	for i := range buf {
		buf[i] = 0xff
	}
	GetLastError(buf)
	assert.Equal(t, "Cannot ", string(buf[:7]))
	assert.Equal(t, byte(0), buf[7])

	// Zero-length destination is left alone.
	GetLastError(nil)
	GetLastError([]byte{})
}

func TestGetPathInfo(t *testing.T) {
	lockThread(t)
	fs, mfs := connectMem(t)
	mfs.Put("/dir/a.txt", []byte("aaaa"))

	info := GetPathInfo(fs, "/dir/a.txt")
	require.NotNil(t, info)
	assert.Equal(t, int64(4), info.Size)
	assert.False(t, info.IsDir)

	dir := GetPathInfo(fs, "/dir")
	require.NotNil(t, dir)
	assert.True(t, dir.IsDir)

	assert.Nil(t, GetPathInfo(fs, "/missing"))
	assert.Equal(t, int(unix.EINVAL), LastErrno())
}

func TestListDirectory(t *testing.T) {
	lockThread(t)
	fs, mfs := connectMem(t)
	mfs.Put("/dir/a.txt", []byte("a"))
	mfs.Put("/dir/b.txt", []byte("b"))
	mfs.Put("/dir/sub/c.txt", []byte("c"))

	infos := ListDirectory(fs, "/dir")
	require.Len(t, infos, 3)
	assert.Equal(t, "/dir/a.txt", infos[0].Path)
	assert.Equal(t, "/dir/b.txt", infos[1].Path)
	assert.Equal(t, "/dir/sub", infos[2].Path)
	assert.True(t, infos[2].IsDir)

	assert.Nil(t, ListDirectory(fs, "/absent"))
	assert.Equal(t, int(unix.EINVAL), LastErrno())
}
