// Package filesystem provides the low-level filesystem primitives the
// backup engine needs: hardlink creation with cross-device fallback
// detection, metadata preservation, symlink recreation, and atomic file
// replacement. These are the POSIX-level building blocks that
// pkg/generation and pkg/pipeline compose into the reuse protocol.
package filesystem

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

// ErrCrossDevice indicates that a hardlink could not be created because
// the source and target reside on different filesystems. Callers must
// fall back to a regular copy for that file.
var ErrCrossDevice = errors.New("cross-device hardlink")

// Hardlink creates a hardlink at target pointing at the same inode as
// source. If the attempt fails because source and target are on
// different devices, ErrCrossDevice is returned (wrapping the underlying
// error) so callers can detect the condition and fall back to a copy
// without retrying the rest of the run.
func Hardlink(source, target string) error {
	if err := os.Link(source, target); err != nil {
		if isCrossDevice(err) {
			return fmt.Errorf("%w: %v", ErrCrossDevice, err)
		}
		return err
	}
	return nil
}

// isCrossDevice reports whether err represents a cross-device link
// failure (EXDEV).
func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		if errno, ok := linkErr.Err.(syscall.Errno); ok {
			return errno == syscall.EXDEV
		}
	}
	return errors.Is(err, syscall.EXDEV)
}

// CopyMetadata copies the permission bits and modification/access times
// from source to target, preserving metadata for a copied file.
// Hardlinked outcomes need no explicit propagation since the metadata is
// inherent to the shared inode.
func CopyMetadata(source, target string) error {
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("unable to stat source for metadata copy: %w", err)
	}
	if err := os.Chmod(target, info.Mode().Perm()); err != nil {
		return fmt.Errorf("unable to set target permissions: %w", err)
	}
	modTime := info.ModTime()
	accessTime := accessTimeOf(info)
	if err := os.Chtimes(target, accessTime, modTime); err != nil {
		return fmt.Errorf("unable to set target times: %w", err)
	}
	return nil
}

// accessTimeOf extracts the platform-native last-access time from file
// info, falling back to the modification time if the access time isn't
// available through the underlying syscall stat structure.
func accessTimeOf(info os.FileInfo) time.Time {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(stat.Atim.Sec, stat.Atim.Nsec)
	}
	return info.ModTime()
}

// RecreateSymlink recreates a symbolic link at target pointing at
// whatever target the source symlink names, without resolving it. A
// symlink's target is never dereferenced and a dangling target is never
// an error.
func RecreateSymlink(source, target string) error {
	linkTarget, err := os.Readlink(source)
	if err != nil {
		return fmt.Errorf("unable to read symbolic link: %w", err)
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unable to remove existing target: %w", err)
	}
	if err := os.Symlink(linkTarget, target); err != nil {
		return fmt.Errorf("unable to create symbolic link: %w", err)
	}
	return nil
}

// IsSpecialFile reports whether the given file mode represents a FIFO,
// socket, or device file — content that should be skipped with a log
// message rather than copied or treated as an error.
func IsSpecialFile(mode os.FileMode) bool {
	return mode&(os.ModeNamedPipe|os.ModeSocket|os.ModeDevice|os.ModeCharDevice) != 0
}
