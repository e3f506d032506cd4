// Package callenv keeps the per-thread state of the boundary layer: the last
// error recorded on a thread and the event callbacks stashed for that
// thread's next connect. State is looked up through an OS-thread identity
// key, so concurrent callers never see each other's diagnostics.
//
// Callers entering from a C host are already pinned to one OS thread for the
// duration of a call. Pure-Go callers that want stable per-thread error
// reporting should hold runtime.LockOSThread across an operation and the
// GetLastError that follows it.
package callenv

import (
	"sync"

	"github.com/fsbridge/fsbridge/pkg/engine"
)

// Env is one thread's boundary-layer context. It is created on the thread's
// first use and only ever touched from that thread, so its fields need no
// locking.
type Env struct {
	// Errno and ErrText record the most recent failure reported on this
	// thread. They are overwritten by each failing operation and never
	// cleared on success.
	Errno   int
	ErrText string

	// FSCallback and FileCallback are the pending event callbacks attached
	// to the next filesystem created from this thread. Consumed at connect
	// time but not cleared, so they persist for subsequent connects until
	// overwritten.
	FSCallback   engine.FSEventCallback
	FileCallback engine.FileEventCallback
}

var envs sync.Map // thread id → *Env

// Current returns the calling thread's Env, creating it on first use.
func Current() *Env {
	id := threadID()
	if v, ok := envs.Load(id); ok {
		return v.(*Env)
	}
	v, _ := envs.LoadOrStore(id, &Env{})
	return v.(*Env)
}

// Release drops the calling thread's Env. Hosts that recycle threads may call
// it at thread teardown; a released Env is recreated empty on next use.
func Release() {
	envs.Delete(threadID())
}

// Report records a failure into the env. Idempotent overwrite.
func (e *Env) Report(errno int, msg string) {
	e.Errno = errno
	e.ErrText = msg
}

// CopyLastError copies the recorded error text into buf and null-terminates
// it. At most len(buf)-1 text bytes are written; when the text length equals
// len(buf) the copy is truncated by one byte to keep room for the
// terminator. An empty buf is a no-op.
func (e *Env) CopyLastError(buf []byte) {
	if len(buf) < 1 {
		return
	}
	n := len(e.ErrText)
	if n > len(buf) {
		n = len(buf)
	}
	if n == len(buf) {
		n--
	}
	copy(buf, e.ErrText[:n])
	buf[n] = 0
}
