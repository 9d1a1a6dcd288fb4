//go:build !linux && !darwin

package fsutil

import "path/filepath"

// TrustInode reports whether (st_dev, st_ino) is a reliable, stable queue
// identity on this platform. Inode numbers are not stable on
// Windows/Cygwin-family filesystems, so identity falls back to the
// canonicalized path (see Identity below) and uniqueness is weaker:
// two different paths that happen to point at the same underlying
// directory (e.g. via a junction) will not compare equal.
func TrustInode() bool {
	return false
}

// NlinkCount reports whether st_nlink - 2 is a trustworthy fast path for
// counting sub-directories. It is not on DOS-family filesystems, which
// don't maintain a meaningful link count on directories.
func NlinkCount() bool {
	return false
}

// Identity returns the canonicalized absolute path of path as an opaque,
// comparable byte string.
func Identity(path string) ([]byte, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, wrap("abs", path, err)
	}
	clean := filepath.Clean(abs)
	return []byte(clean), nil
}

// Nlink is unused on this platform; NlinkCount always reports false so
// callers never call it, but it's kept so the build stays symmetric.
func Nlink(path string) (uint64, error) {
	return 0, nil
}
