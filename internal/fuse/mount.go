package fuse

import (
	"context"
	"fmt"
	"os"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"

	"github.com/fsbridge/fsbridge/internal/logging"
)

// MountManager mounts and unmounts one FileSystem.
type MountManager struct {
	filesystem *FileSystem
	config     *Config
	server     *fuse.Server
	mounted    bool
}

// NewMountManager returns an unmounted manager for filesystem.
func NewMountManager(filesystem *FileSystem, config *Config) *MountManager {
	if config == nil {
		config = filesystem.config
	}
	return &MountManager{filesystem: filesystem, config: config}
}

// Mount mounts the filesystem and starts serving kernel requests in the
// background.
func (m *MountManager) Mount(ctx context.Context) error {
	if m.mounted {
		return fmt.Errorf("already mounted at %s", m.config.MountPoint)
	}
	if err := m.validateMountPoint(); err != nil {
		return fmt.Errorf("invalid mount point: %w", err)
	}

	server, err := fs.Mount(m.config.MountPoint, m.filesystem.Root(), m.buildOptions())
	if err != nil {
		return fmt.Errorf("mount %s: %w", m.config.MountPoint, err)
	}
	m.server = server
	m.mounted = true
	logging.Logf(logging.LevelInfo, logging.ComponentFileSystem, "mounted at %s", m.config.MountPoint)
	return nil
}

// Unmount detaches the filesystem, falling back to a lazy unmount when the
// kernel refuses a clean one.
func (m *MountManager) Unmount() error {
	if !m.mounted || m.server == nil {
		return fmt.Errorf("not mounted")
	}
	if err := m.server.Unmount(); err != nil {
		logging.Logf(logging.LevelWarn, logging.ComponentFileSystem, "unmount %s failed, trying lazy unmount", m.config.MountPoint)
		if lazyErr := unix.Unmount(m.config.MountPoint, unix.MNT_DETACH); lazyErr != nil {
			return fmt.Errorf("unmount %s: %w", m.config.MountPoint, err)
		}
	}
	m.mounted = false
	m.server = nil
	return nil
}

// Wait blocks until the mount is torn down.
func (m *MountManager) Wait() {
	if m.server != nil {
		m.server.Wait()
	}
}

// IsMounted reports whether the filesystem is currently mounted.
func (m *MountManager) IsMounted() bool {
	return m.mounted
}

func (m *MountManager) validateMountPoint() error {
	if m.config.MountPoint == "" {
		return fmt.Errorf("mount point not set")
	}
	info, err := os.Stat(m.config.MountPoint)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", m.config.MountPoint)
	}
	return nil
}

func (m *MountManager) buildOptions() *fs.Options {
	attr := m.config.AttrTimeout
	entry := m.config.EntryTimeout
	opts := &fs.Options{
		MountOptions: fuse.MountOptions{
			Name:       m.config.FSName,
			FsName:     m.config.FSName,
			Debug:      m.config.Debug,
			AllowOther: m.config.AllowOther,
		},
		AttrTimeout:  &attr,
		EntryTimeout: &entry,
	}
	opts.Options = append(opts.Options, "ro")
	return opts
}
