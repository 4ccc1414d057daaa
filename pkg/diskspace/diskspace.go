// Package diskspace provides a total/available byte probe for the
// filesystem backing a path, used both for the stats file's before/after
// snapshot and to size the auto-reclaim hook's needed-bytes argument.
//
// Grounded on the teacher's statfs-based free-space probing in
// pkg/filesystem/format_statfs_linux.go / format_statfs.go, which calls
// the same syscall family to determine filesystem capacity.
package diskspace

import "golang.org/x/sys/unix"

// Usage reports a filesystem's total and available capacity, in bytes.
type Usage struct {
	Total     uint64
	Available uint64
}

// Probe statfs(2)s the filesystem backing path and returns its total and
// available byte capacity.
func Probe(path string) (Usage, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Usage{}, err
	}
	blockSize := uint64(stat.Bsize)
	return Usage{
		Total:     stat.Blocks * blockSize,
		Available: stat.Bavail * blockSize,
	}, nil
}
