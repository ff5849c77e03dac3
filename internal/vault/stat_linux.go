//go:build linux

package vault

import (
	"io/fs"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// createdAt returns the birth time of the file at abs. Filesystems that do
// not report one fall back to the inode change time.
func createdAt(abs string, info fs.FileInfo) time.Time {
	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, abs, 0, unix.STATX_BTIME, &stx)
	if err == nil && stx.Mask&unix.STATX_BTIME != 0 {
		return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec))
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.ModTime()
	}
	return time.Unix(int64(stat.Ctim.Sec), int64(stat.Ctim.Nsec))
}
