package fsutil

import (
	"os"
	"path/filepath"
)

// SubdirCount returns the number of sub-directories directly under path.
// On filesystems where a directory's link count equals 2 plus its number
// of sub-directories, it uses Nlink as an O(1) fast path; otherwise
// (DOS-family filesystems, or if the fast path's precondition doesn't
// hold on this platform) it falls back to an actual directory listing.
//
// ok is false if path no longer exists (a concurrent purge may have
// retired the bucket between the caller listing it and counting it).
func SubdirCount(path string) (count int, ok bool, err error) {
	if NlinkCount() {
		n, err := Nlink(path)
		if err != nil {
			if isGone(err) {
				return 0, false, nil
			}
			return 0, false, err
		}
		if n < 2 {
			return 0, false, nil
		}
		return int(n) - 2, true, nil
	}

	names, err := ReadDir(path, false)
	if err != nil {
		return 0, false, err
	}
	if names == nil {
		return 0, false, nil
	}
	count = 0
	for _, name := range names {
		info, err := Lstat(filepath.Join(path, name))
		if err != nil {
			if isGone(err) {
				continue
			}
			return 0, false, err
		}
		if info.IsDir() {
			count++
		}
	}
	return count, true, nil
}

func isGone(err error) bool {
	return os.IsNotExist(err)
}
