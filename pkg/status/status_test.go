package status

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestErrnoMapping(t *testing.T) {
	tests := []struct {
		code    Code
		errno   int
		message string
	}{
		{OK, 0, ""},
		{InvalidArgument, int(unix.EINVAL), "Invalid argument"},
		{ResourceUnavailable, int(unix.EAGAIN), "Resource temporarily unavailable"},
		{Unimplemented, int(unix.ENOSYS), "Function not implemented"},
		{Exception, int(unix.EINTR), "Exception raised"},
		{OperationCanceled, int(unix.EINTR), "Operation canceled"},
		{PermissionDenied, int(unix.EACCES), "Permission denied"},
		{Code(999), int(unix.ENOSYS), "Error: unrecognised code"},
		{Code(-1), int(unix.ENOSYS), "Error: unrecognised code"},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			errno, msg := tt.code.Errno()
			assert.Equal(t, tt.errno, errno)
			assert.Equal(t, tt.message, msg)
		})
	}
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	st := New(PermissionDenied, "no access")
	assert.Same(t, st, FromError(st))

	plain := errors.New("socket closed")
	got := FromError(plain)
	assert.Equal(t, Exception, got.Code())
	assert.Equal(t, "socket closed", got.Message())
}

func TestNilStatusReadsAsOK(t *testing.T) {
	var s *Status
	assert.Equal(t, OK, s.Code())
	assert.Equal(t, "", s.Message())
	assert.Equal(t, "OK", s.Error())
}

func TestErrorText(t *testing.T) {
	assert.Equal(t, "InvalidArgument", New(InvalidArgument, "").Error())
	assert.Equal(t, "PermissionDenied: nope", New(PermissionDenied, "nope").Error())
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("open: %w", New(OperationCanceled, "aborted"))
	assert.True(t, errors.Is(err, New(OperationCanceled, "")))
	assert.False(t, errors.Is(err, New(PermissionDenied, "")))
}
