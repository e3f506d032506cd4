package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsbridge/fsbridge/internal/logging"
)

func TestSetLogFunctionReceivesEngineLog(t *testing.T) {
	var got []*LogRecord
	SetLogFunction(func(rec *LogRecord) {
		if rec.Component == LogComponentFileSystem {
			got = append(got, CopyLogRecord(rec))
		}
	})
	t.Cleanup(func() { logging.SetSink(nil) })

	fs, _ := connectMem(t)
	_ = fs

	require.NotEmpty(t, got)
	rec := got[0]
	assert.Equal(t, LogLevelInfo, rec.Level)
	assert.Contains(t, string(rec.Msg), "memfs connected")
	assert.NotEmpty(t, rec.FileName)
	assert.Greater(t, rec.FileLine, 0)
}

func TestCopyLogRecordIsDeep(t *testing.T) {
	orig := &LogRecord{
		Level:     LogLevelWarn,
		Component: LogComponentRPC,
		Msg:       []byte("retrying"),
		FileName:  "rpc.go",
		FileLine:  12,
	}
	cp := CopyLogRecord(orig)
	require.NotNil(t, cp)
	assert.Equal(t, orig, cp)

	cp.Msg[0] = 'X'
	assert.Equal(t, byte('r'), orig.Msg[0])

	assert.Nil(t, CopyLogRecord(nil))
}

func TestFreeLogRecordScrubs(t *testing.T) {
	backing := []byte("sensitive")
	rec := &LogRecord{Level: LogLevelError, Msg: backing}

	FreeLogRecord(rec)
	assert.Equal(t, LogRecord{}, *rec)
	for _, b := range backing {
		assert.Equal(t, byte(0), b)
	}

	FreeLogRecord(nil)
}

func TestSetLogFunctionNilSilences(t *testing.T) {
	SetLogFunction(nil)
	t.Cleanup(func() { logging.SetSink(nil) })

	// Nothing to assert beyond "does not crash": the forwarding sink drops
	// messages when the callback is nil.
	fs, _ := connectMem(t)
	_ = fs
}

func TestSetLoggingLevel(t *testing.T) {
	t.Cleanup(func() { logging.SetLevel(logging.LevelInfo) })

	assert.Equal(t, 0, SetLoggingLevel(LogLevelTrace))
	assert.Equal(t, 0, SetLoggingLevel(LogLevelError))
	assert.Equal(t, 1, SetLoggingLevel(LogLevelError+1))
	assert.Equal(t, 1, SetLoggingLevel(-1))
}

func TestComponentValidation(t *testing.T) {
	t.Cleanup(func() {
		for _, c := range []int{LogComponentUnknown, LogComponentRPC, LogComponentBlockReader, LogComponentFileHandle, LogComponentFileSystem} {
			EnableLoggingForComponent(c)
		}
	})

	tests := []struct {
		name      string
		component int
		want      int
	}{
		{"unknown", LogComponentUnknown, 0},
		{"rpc", LogComponentRPC, 0},
		{"filesystem", LogComponentFileSystem, 0},
		{"zero", 0, 1},
		{"negative", -8, 1},
		{"two bits", LogComponentRPC | LogComponentFileHandle, 1},
		{"past the end", LogComponentFileSystem << 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EnableLoggingForComponent(tt.component))
			assert.Equal(t, tt.want, DisableLoggingForComponent(tt.component))
		})
	}
}
