package bridge

import (
	"github.com/fsbridge/fsbridge/internal/callenv"
	"github.com/fsbridge/fsbridge/pkg/status"
)

// guard runs fn and converts any panic into an exception report on env,
// returning failure in its place. Every exported entry point goes through
// it so that no panic from an engine or a callback crosses the boundary.
func guard[T any](env *callenv.Env, failure T, fn func() T) (result T) {
	defer func() {
		if r := recover(); r != nil {
			reportPanic(env, r)
			result = failure
		}
	}()
	return fn()
}

func reportPanic(env *callenv.Env, recovered interface{}) {
	var st *status.Status
	if err, ok := recovered.(error); ok {
		st = status.Exceptionf("Uncaught exception: %s", err.Error())
	} else {
		st = status.Exceptionf("Uncaught value of type %T thrown across the call boundary", recovered)
	}
	errno, msg := st.Code().Errno()
	if st.Message() != "" {
		msg = st.Message()
	}
	reportError(env, errno, msg)
}
