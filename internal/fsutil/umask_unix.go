//go:build linux || darwin || freebsd || openbsd || netbsd

package fsutil

import "golang.org/x/sys/unix"

// WithUmask temporarily installs mask as the process umask, runs fn, and
// unconditionally restores the previous umask on every exit path
// (including panics propagating through fn).
func WithUmask(mask int, fn func() error) error {
	old := unix.Umask(mask)
	defer unix.Umask(old)
	return fn()
}
