package bridge

import (
	"github.com/fsbridge/fsbridge/internal/callenv"
	"github.com/fsbridge/fsbridge/internal/logging"
	"github.com/fsbridge/fsbridge/pkg/status"
)

// reportError records errno and text as the calling thread's last error.
func reportError(env *callenv.Env, errno int, msg string) {
	env.Report(errno, msg)
	logging.Logf(logging.LevelDebug, logging.ComponentUnknown, "errno %d: %s", errno, msg)
}

// translateError maps err onto its errno through the status taxonomy and
// records it on env. An engine-supplied message replaces the code's default
// text. Returns 0 for a nil error, -1 otherwise.
func translateError(env *callenv.Env, err error) int {
	st := status.FromError(err)
	if st.Code() == status.OK {
		return 0
	}
	errno, msg := st.Code().Errno()
	if st.Message() != "" {
		msg = st.Message()
	}
	reportError(env, errno, msg)
	return -1
}

// GetLastError copies the calling thread's last error text into buf and
// null-terminates it, truncating to fit. An empty or nil buf is a no-op.
// The recorded text is only meaningful after an operation on this thread
// has failed.
func GetLastError(buf []byte) {
	callenv.Current().CopyLastError(buf)
}

// LastErrno returns the errno recorded by the most recent failing operation
// on the calling thread. It is not cleared by successful operations.
func LastErrno() int {
	return callenv.Current().Errno
}
