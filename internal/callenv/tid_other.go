//go:build !linux

package callenv

// Platforms without a cheap thread-id syscall share a single env. Error text
// on these hosts is process-scoped rather than thread-scoped; callers that
// need isolation must serialize operations themselves.
func threadID() int {
	return 0
}
