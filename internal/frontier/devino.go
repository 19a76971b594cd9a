package frontier

import (
	"os"
	"syscall"
)

// DevInoOf extracts the (device, inode) identity pair from file
// metadata. ok is false on filesystems whose Sys() is not a
// syscall.Stat_t.
func DevInoOf(info os.FileInfo) (DevIno, bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return DevIno{}, false
	}
	return DevIno{Device: uint64(stat.Dev), Inode: stat.Ino}, true
}
