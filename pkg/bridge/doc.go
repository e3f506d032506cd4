/*
Package bridge is the POSIX-style boundary over the filesystem engines. It
presents the conventions a C caller expects from a classic filesystem
client API: opaque
handles that behave like values, integer return codes (0 or a byte count on
success, -1 or nil on failure), errno-style error numbers, and a per-thread
last-error text retrieved with GetLastError.

Every exported operation is wrapped in a boundary guard: no panic raised by
an engine, a callback, or this layer itself ever escapes an exported call.
Failures are translated onto POSIX errnos through the status taxonomy and
recorded in the calling thread's error channel before the sentinel return.

Connections are built either with Connect/ConnectAsUser, which use default
options, or through a Builder, which loads layered YAML configuration and
accepts host, port, and user overrides. Engines are selected by the
fs.engine configuration key and must be linked in by the embedding program,
usually with a blank import:

	import _ "github.com/fsbridge/fsbridge/internal/engine/s3"

Handles are exclusively owned: Disconnect destroys the filesystem handle and
the engine object under it, CloseFile does the same for file handles. The
layer adds no locking around a handle; concurrent use of one handle is
whatever the engine makes of it, and destroying a handle while another
thread uses it is a caller error.
*/
package bridge
