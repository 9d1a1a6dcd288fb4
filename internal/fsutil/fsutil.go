// Package fsutil wraps the POSIX primitives the queue protocol is built
// from (mkdir, rmdir, read-dir, rename, unlink, file create/read/write)
// and classifies the races they can hit: EEXIST/ENOENT caused by another
// participant winning a benign race are reported as a bool, anything else
// is wrapped as a fatal *IOError carrying the syscall, path and cause.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fishy/dirq/internal/pool"
)

// IOError is a fatal, unexpected filesystem failure: anything that isn't
// one of the races this package already knows how to tolerate.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("dirq: %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap allows errors.Is/errors.As to see through to the underlying
// *os.PathError/*os.LinkError/errno.
func (e *IOError) Unwrap() error {
	return e.Err
}

func wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}

// MkdirResult is the outcome of a Mkdir call.
type MkdirResult int

const (
	// Created means the directory did not exist and was created.
	Created MkdirResult = iota
	// Exists means the directory already existed (benign race).
	Exists
)

// Missing is the benign "already gone" outcome shared by Mkdir and Rmdir.
// It is an untyped constant so it compares against both MkdirResult and
// RmdirResult. For Mkdir it means the parent of path no longer exists
// (another participant reaped the element this directory would have
// lived under before we got to it); for Rmdir it means the directory was
// already gone.
const Missing = 2

// Mkdir creates a single directory (not its parents). EEXIST where the
// existing path is indeed a directory, and ENOENT (a missing parent),
// are both benign races reported via the result value with a nil error;
// EEXIST on a non-directory, or any other error, is fatal.
func Mkdir(path string, perm os.FileMode) (MkdirResult, error) {
	if err := os.Mkdir(path, perm); err != nil {
		if os.IsExist(err) {
			info, statErr := os.Lstat(path)
			if statErr == nil && info.IsDir() {
				return Exists, nil
			}
		}
		if os.IsNotExist(err) {
			return Missing, nil
		}
		return Created, wrap("mkdir", path, err)
	}
	return Created, nil
}

// MkdirAll creates path and every missing parent, tolerating the
// already-exists race the same way Mkdir does.
func MkdirAll(path string, perm os.FileMode) error {
	if err := os.MkdirAll(path, perm); err != nil && !os.IsExist(err) {
		return wrap("mkdirall", path, err)
	}
	return nil
}

// RmdirResult is the outcome of an Rmdir call.
type RmdirResult int

const (
	// Removed means the directory existed and was removed.
	Removed RmdirResult = iota
)

// Rmdir removes an (expected-empty) directory. ENOENT is a benign race;
// ENOTEMPTY/EEXIST are returned unwrapped so callers can distinguish
// "someone re-populated it" from other failures; anything else is fatal.
func Rmdir(path string) (RmdirResult, error) {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return Missing, nil
		}
		if isNotEmpty(err) {
			return Removed, err
		}
		return Removed, wrap("rmdir", path, err)
	}
	return Removed, nil
}

// ReadDir lists the directory entries at path, minus "." and "..". If
// strict is true, a missing directory is a fatal error; otherwise it
// returns a nil slice.
func ReadDir(path string, strict bool) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) && !strict {
			return nil, nil
		}
		return nil, wrap("readdir", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// CreateExclusive creates path with O_WRONLY|O_CREAT|O_EXCL under perm.
// EEXIST and ENOENT (missing parent) are benign unless strict, in which
// case they're wrapped as fatal. On success the caller owns the *os.File
// and must Close it.
func CreateExclusive(path string, perm os.FileMode, strict bool) (*os.File, bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		if !strict && (os.IsExist(err) || os.IsNotExist(err)) {
			return nil, false, nil
		}
		return nil, false, wrap("create", path, err)
	}
	return f, true, nil
}

// Rename renames oldpath to newpath. ENOTEMPTY/EEXIST on the target (two
// participants sharing a name, or a name collision within the same
// microsecond) is reported as ok=false so the caller can retry with a
// fresh name; any other error is fatal.
func Rename(oldpath, newpath string) (ok bool, err error) {
	if err := os.Rename(oldpath, newpath); err != nil {
		if isNotEmpty(err) || os.IsExist(err) {
			return false, nil
		}
		return false, wrap("rename", oldpath+" -> "+newpath, err)
	}
	return true, nil
}

// Remove unlinks path. ENOENT is a benign race (something else may have
// legitimately reaped it already).
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return wrap("unlink", path, err)
	}
	return nil
}

// Lstat stats path without following symlinks, the way every path touch
// in this package must: a queue element name is never allowed to resolve
// through a symlink.
func Lstat(path string) (os.FileInfo, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, wrap("lstat", path, err)
	}
	return info, nil
}

// Exists reports whether path exists, via Lstat. Every Lstat error,
// "not exist" or otherwise, yields false; callers that need to tell
// those apart should call Lstat directly instead.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// WriteFile writes all of data to path, which must not already exist,
// in pool-backed 8KiB chunks.
func WriteFile(path string, data io.Reader, perm os.FileMode) error {
	f, created, err := CreateExclusive(path, perm, true)
	if err != nil {
		return err
	}
	if !created {
		return wrap("create", path, os.ErrExist)
	}
	defer f.Close()

	buf := pool.GetChunk()
	defer pool.PutChunk(buf)
	if _, err := io.CopyBuffer(f, data, *buf); err != nil {
		return wrap("write", path, err)
	}
	return nil
}

// OpenReader opens path for reading without buffering its contents, for
// callers implementing the by-reference Get path. A "not exist" error is
// returned unwrapped so callers can classify it with os.IsNotExist.
func OpenReader(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, wrap("open", path, err)
	}
	return f, nil
}

// Chtimes sets path's access and modification times.
func Chtimes(path string, atime, mtime time.Time) error {
	if err := os.Chtimes(path, atime, mtime); err != nil {
		return wrap("chtimes", path, err)
	}
	return nil
}

// ReadFile reads the full contents of path in pool-backed 8KiB chunks.
func ReadFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, wrap("open", path, err)
	}
	defer f.Close()

	buf := pool.GetChunk()
	defer pool.PutChunk(buf)

	var out []byte
	for {
		n, err := f.Read(*buf)
		if n > 0 {
			out = append(out, (*buf)[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, wrap("read", path, err)
		}
	}
	return out, nil
}
