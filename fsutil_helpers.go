package dirq

import (
	"io"
	"os"
	"time"

	"github.com/fishy/dirq/internal/fsutil"
)

// isNotExist reports whether err is the "not exist" race fsutil's Lstat,
// ReadFile and OpenReader report unwrapped.
func isNotExist(err error) bool {
	return os.IsNotExist(err)
}

// openReader opens path for by-reference reads.
func openReader(path string) (io.ReadCloser, error) {
	return fsutil.OpenReader(path)
}

// chtimes sets path's access and modification times to the same value.
func chtimes(path string, atime, mtime time.Time) error {
	return fsutil.Chtimes(path, atime, mtime)
}

// withUmask runs fn with opts' umask override installed, if it carries
// one; otherwise it runs fn unchanged, inheriting the process umask.
// Every call site that creates a file or directory on behalf of a queue
// must route through this so SetUmask actually governs what it claims
// to.
func withUmask(opts Options, fn func() error) error {
	mask := opts.GetUmask()
	if mask == nil {
		return fn()
	}
	return fsutil.WithUmask(int(*mask), fn)
}
