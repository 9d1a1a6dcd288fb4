//go:build linux || darwin || freebsd || openbsd || netbsd

package fsutil

import (
	"errors"
	"syscall"
)

// isNotEmpty reports whether err is ENOTEMPTY or EEXIST, the errnos
// rename/rmdir may return when the target directory still has children
// (another participant re-created a lock, or a name collision on rename).
func isNotEmpty(err error) bool {
	return errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST)
}

// IsNotEmpty is the exported form of isNotEmpty, used by callers (e.g.
// the remove() re-lock race loop) that need to distinguish "the
// directory still has children" from other Rmdir failures.
func IsNotEmpty(err error) bool {
	return isNotEmpty(err)
}
