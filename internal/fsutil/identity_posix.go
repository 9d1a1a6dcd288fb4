//go:build linux || darwin

package fsutil

import (
	"encoding/binary"
	"os"

	"golang.org/x/sys/unix"
)

// TrustInode reports whether (st_dev, st_ino) is a reliable, stable queue
// identity on this platform.
func TrustInode() bool {
	return true
}

// NlinkCount reports whether st_nlink - 2 is a trustworthy fast path for
// counting sub-directories on this platform's filesystems.
func NlinkCount() bool {
	return true
}

// Identity returns the (device, inode) pair of path as an opaque,
// comparable byte string.
func Identity(path string) ([]byte, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return nil, wrap("stat", path, err)
	}
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], uint64(st.Dev))
	binary.BigEndian.PutUint64(buf[8:16], uint64(st.Ino))
	return buf, nil
}

// Nlink returns the hard-link count of path, used for the nlink-2
// sub-directory counting fast path.
func Nlink(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		if os.IsNotExist(err) {
			return 0, err
		}
		return 0, wrap("lstat", path, err)
	}
	return uint64(st.Nlink), nil
}
