//go:build !windows

package storage

import "golang.org/x/sys/unix"

// freeBytes reports free space at path using statfs, following the same
// GOOS-split idiom as the teacher's internal/youtube/proc_unix.go and
// internal/images/converter_unix.go.
func freeBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
