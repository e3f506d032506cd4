/*
Package fuse exposes a connected filesystem handle as a read-only FUSE
mount. It is a thin adapter: every kernel request turns into one call on
the boundary layer (stat, list, open, positional read) and the recorded
errno of a failed call is translated back into the kernel's errno space.

The adapter pins each request to its OS thread for the duration of the
boundary call so the per-thread last-error contract holds between the
failing call and the errno lookup.

Mounting is managed by MountManager, which validates the mount point,
serves the filesystem in the background, and falls back to a lazy unmount
when the kernel refuses a clean one.
*/
package fuse
