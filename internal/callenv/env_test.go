package callenv

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentReturnsSameEnvOnSameThread(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	a := Current()
	b := Current()
	assert.Same(t, a, b)
}

func TestReportOverwrites(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	e := Current()
	e.Report(22, "Invalid argument")
	e.Report(13, "Permission denied")
	assert.Equal(t, 13, e.Errno)
	assert.Equal(t, "Permission denied", e.ErrText)
}

func TestCopyLastError(t *testing.T) {
	e := &Env{ErrText: "Permission denied"} // 17 bytes

	tests := []struct {
		name    string
		bufLen  int
		want    string
		wantLen int
	}{
		{"larger buffer", 32, "Permission denied", 17},
		{"exact length truncates by one", 17, "Permission denie", 16},
		{"short buffer", 5, "Perm", 4},
		{"single byte", 1, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, tt.bufLen)
			for i := range buf {
				buf[i] = 0xff
			}
			e.CopyLastError(buf)
			assert.Equal(t, tt.want, string(buf[:tt.wantLen]))
			assert.Equal(t, byte(0), buf[tt.wantLen], "missing terminator")
			if tt.bufLen > tt.wantLen+1 {
				assert.Equal(t, byte(0xff), buf[tt.wantLen+1], "wrote past terminator")
			}
		})
	}
}

func TestCopyLastErrorNilAndEmpty(t *testing.T) {
	e := &Env{ErrText: "boom"}
	e.CopyLastError(nil)      // no-op
	e.CopyLastError([]byte{}) // no-op
	buf := []byte{0xff, 0xff}
	(&Env{}).CopyLastError(buf) // empty text still terminates
	assert.Equal(t, byte(0), buf[0])
}

func TestEnvsAreThreadScoped(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("thread-scoped envs require per-thread ids")
	}

	var wg sync.WaitGroup
	envCh := make(chan *Env, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			envCh <- Current()
		}()
	}
	wg.Wait()
	close(envCh)

	var got []*Env
	for e := range envCh {
		got = append(got, e)
	}
	require.Len(t, got, 2)
	assert.NotSame(t, got[0], got[1])
}

func TestReleaseDropsEnv(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	e := Current()
	e.Report(5, "I/O error")
	Release()
	fresh := Current()
	assert.Equal(t, 0, fresh.Errno)
	assert.Equal(t, "", fresh.ErrText)
}
