package dirq

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fishy/dirq/internal/fsutil"
	"github.com/fishy/dirq/internal/pool"
	"github.com/fishy/dirq/internal/rowlock"
)

// lockSuffix names a Simple element's advisory lock marker. A Simple
// element is a single regular file, so unlike Normal it has no
// directory of its own to hold a nested locked/ marker; the marker is
// instead a sibling directory named "<element>.lock".
const lockSuffix = ".lock"

// Simple is a single-field queue: every element is one regular file
// holding an opaque payload. It resolves the schema-queue/simple-queue
// split noted in the design as Normal with one implicit mandatory
// by-reference binary field, laid out without Normal's per-element
// directory since there is only ever the one field to hold.
type Simple struct {
	*base

	// elementLocks and bucketMu serve the same in-process purpose as
	// their Normal counterparts: cutting down on wasted mkdir/rename
	// retries between goroutines sharing this handle.
	elementLocks *rowlock.RowLock
	bucketMu     sync.Mutex
}

// OpenSimple opens (creating if necessary) a Simple queue rooted at the
// path in opts. opts.GetSchema() is ignored: a Simple queue's layout is
// fixed and carries no schema of its own.
func OpenSimple(opts Options) (*Simple, error) {
	b, err := openBase(opts)
	if err != nil {
		return nil, err
	}
	return &Simple{
		base:         b,
		elementLocks: rowlock.New(),
	}, nil
}

// Copy returns an independent iterator handle sharing identity and
// options with s, but with its own (initially empty) cursor state.
func (s *Simple) Copy() *Simple {
	return &Simple{
		base:         s.base.copyCursor(),
		elementLocks: s.elementLocks,
	}
}

// First resets the iterator to the first live element and returns it
// ("bucket/name"), or "" if the queue is empty. Lock marker
// directories never match elementNameRe, so the shared cursor logic
// skips them without any Simple-specific filtering.
func (s *Simple) First() (string, error) {
	if err := s.first(); err != nil {
		return "", err
	}
	return s.next()
}

// Next advances the iterator and returns the next live element
// ("bucket/name"), or "" once exhausted.
func (s *Simple) Next() (string, error) {
	return s.next()
}

// Count returns the (transient) number of live elements across all
// buckets. Unlike Normal, elements are plain files rather than
// directories, so the nlink fast path doesn't apply; this always reads
// each bucket's directory.
func (s *Simple) Count() (int, error) {
	buckets, err := s.listBuckets()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, bucket := range buckets {
		count, ok, err := countElements(filepath.Join(s.root, bucket))
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		total += count
	}
	return total, nil
}

// Add writes payload to a fresh temporary/ file and atomically
// rename()s it into the current insertion bucket, returning the new
// element's "bucket/name". payload is streamed straight to disk
// without buffering it whole in memory.
func (s *Simple) Add(payload io.Reader) (string, error) {
	tempPath, name, err := s.claimTempFile(payload)
	if err != nil {
		return "", err
	}
	ok := false
	defer func() {
		if !ok {
			fsutil.Remove(tempPath)
		}
	}()

	bucketName, err := s.claimBucket()
	if err != nil {
		return "", err
	}

	for {
		target := filepath.Join(s.root, bucketName, name)
		renamed, err := fsutil.Rename(tempPath, target)
		if err != nil {
			return "", err
		}
		if renamed {
			ok = true
			return bucketName + "/" + name, nil
		}
		// Another process claimed `name` in this bucket in the same
		// microsecond; the temporary file's content is unaffected, so
		// just mint a fresh name and retry the rename under it.
		name = newElementName()
	}
}

// claimTempFile streams payload into a freshly minted temporary/<name>
// file, retrying with a new name on a same-microsecond collision.
func (s *Simple) claimTempFile(payload io.Reader) (path, name string, err error) {
	for {
		name = newElementName()
		path = filepath.Join(s.root, temporaryDir, name)
		var f *os.File
		var created bool
		err = withUmask(s.opts, func() error {
			var umErr error
			f, created, umErr = fsutil.CreateExclusive(path, DefaultFileMode, false)
			return umErr
		})
		if err != nil {
			return "", "", err
		}
		if !created {
			continue
		}

		buf := pool.GetChunk()
		_, copyErr := io.CopyBuffer(f, payload, *buf)
		pool.PutChunk(buf)
		closeErr := f.Close()

		if copyErr != nil {
			fsutil.Remove(path)
			return "", "", &fsutil.IOError{Op: "write", Path: path, Err: copyErr}
		}
		if closeErr != nil {
			fsutil.Remove(path)
			return "", "", &fsutil.IOError{Op: "close", Path: path, Err: closeErr}
		}
		return path, name, nil
	}
}

// claimBucket selects the bucket a new element should be inserted
// into, the same way Normal does but counting plain files instead of
// sub-directories.
func (s *Simple) claimBucket() (string, error) {
	s.bucketMu.Lock()
	defer s.bucketMu.Unlock()

	for {
		buckets, err := s.listBuckets()
		if err != nil {
			return "", err
		}
		if len(buckets) == 0 {
			const first = "00000000"
			if err := withUmask(s.opts, func() error {
				_, err := fsutil.Mkdir(filepath.Join(s.root, first), DefaultDirMode)
				return err
			}); err != nil {
				return "", err
			}
			return first, nil
		}

		last := buckets[len(buckets)-1]
		count, ok, err := countElements(filepath.Join(s.root, last))
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		if count < s.opts.GetMaxElts() {
			return last, nil
		}

		next, err := nextBucketName(last)
		if err != nil {
			return "", err
		}
		if err := withUmask(s.opts, func() error {
			_, err := fsutil.Mkdir(filepath.Join(s.root, next), DefaultDirMode)
			return err
		}); err != nil {
			return "", err
		}
		return next, nil
	}
}

// countElements counts the live (non-lock-marker) elements directly
// under path, the Simple-queue equivalent of fsutil.SubdirCount.
func countElements(path string) (count int, ok bool, err error) {
	names, err := fsutil.ReadDir(path, false)
	if err != nil {
		return 0, false, err
	}
	if names == nil {
		return 0, false, nil
	}
	for _, name := range names {
		if elementNameRe.MatchString(name) {
			count++
		}
	}
	return count, true, nil
}

// Lock attempts to claim the advisory lock on name by creating its
// "<name>.lock" marker directory. permissive defaults to true: EEXIST
// (already locked) and ENOENT (element gone) are reported as a false
// return rather than an error.
func (s *Simple) Lock(name string, permissive ...bool) (bool, error) {
	strict := !optBool(permissive, true)
	bucket, leaf, err := splitName(name)
	if err != nil {
		return false, err
	}

	s.elementLocks.Lock(name)
	defer s.elementLocks.Unlock(name)

	elementPath := filepath.Join(s.root, bucket, leaf)
	lockDir := elementPath + lockSuffix

	var res fsutil.MkdirResult
	err = withUmask(s.opts, func() error {
		var umErr error
		res, umErr = fsutil.Mkdir(lockDir, DefaultDirMode)
		return umErr
	})
	if err != nil {
		return false, err
	}
	switch res {
	case fsutil.Exists:
		if strict {
			return false, &fsutil.IOError{Op: "mkdir", Path: lockDir, Err: fmt.Errorf("already locked")}
		}
		return false, nil
	case fsutil.Missing:
		if strict {
			return false, &fsutil.IOError{Op: "mkdir", Path: lockDir, Err: fmt.Errorf("element gone")}
		}
		return false, nil
	}

	if _, err := fsutil.Lstat(elementPath); err != nil {
		if isNotExist(err) {
			fsutil.Rmdir(lockDir)
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Unlock releases the advisory lock on name by removing its
// "<name>.lock" marker directory. permissive defaults to false.
func (s *Simple) Unlock(name string, permissive ...bool) (bool, error) {
	lenient := optBool(permissive, false)
	bucket, leaf, err := splitName(name)
	if err != nil {
		return false, err
	}

	s.elementLocks.Lock(name)
	defer s.elementLocks.Unlock(name)

	lockDir := filepath.Join(s.root, bucket, leaf) + lockSuffix
	res, err := fsutil.Rmdir(lockDir)
	if err != nil {
		return false, err
	}
	if res == fsutil.Missing && !lenient {
		return false, &fsutil.IOError{Op: "rmdir", Path: lockDir, Err: fmt.Errorf("not locked")}
	}
	return res == fsutil.Removed, nil
}

func (s *Simple) isLocked(name string) (bool, error) {
	bucket, leaf, err := splitName(name)
	if err != nil {
		return false, err
	}
	lockDir := filepath.Join(s.root, bucket, leaf) + lockSuffix
	info, err := fsutil.Lstat(lockDir)
	if err != nil {
		if isNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// Get returns the locked element's payload as an io.ReadCloser the
// caller must Close, mirroring Normal's treatment of a by-reference
// field.
func (s *Simple) Get(name string) (io.ReadCloser, error) {
	locked, err := s.isLocked(name)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, &NotLockedError{Name: name}
	}
	bucket, leaf, err := splitName(name)
	if err != nil {
		return nil, err
	}
	return openReader(filepath.Join(s.root, bucket, leaf))
}

// Remove deletes name, which must already be locked by the caller,
// staging the payload through obsolete/ the same way Normal does.
//
// Unlike Normal, the lock marker is a sibling of the element rather
// than nested inside it, so renaming the element away never carries
// the lock marker with it; there is no re-acquisition race to retry
// against here, since a concurrent Lock on the vanished element
// self-corrects (its post-mkdir Lstat check finds the element gone and
// releases the marker it just created).
func (s *Simple) Remove(name string) error {
	locked, err := s.isLocked(name)
	if err != nil {
		return err
	}
	if !locked {
		return &NotLockedError{Name: name}
	}

	bucket, leaf, err := splitName(name)
	if err != nil {
		return err
	}
	elementPath := filepath.Join(s.root, bucket, leaf)
	lockDir := elementPath + lockSuffix

	var obsoletePath string
	for {
		obsoleteName := newElementName()
		obsoletePath = filepath.Join(s.root, obsoleteDir, obsoleteName)
		renamed, err := fsutil.Rename(elementPath, obsoletePath)
		if err != nil {
			return err
		}
		if renamed {
			break
		}
	}

	if _, err := fsutil.Rmdir(lockDir); err != nil {
		return err
	}
	return fsutil.Remove(obsoletePath)
}

// Touch sets the access and modification times of name's payload file
// to now, without otherwise changing it. Purge does not read these
// times: its stale-lock sweep goes by the "<name>.lock" marker's mtime,
// and its stale-staging sweep only looks inside temporary/ and obsolete/.
func (s *Simple) Touch(name string) error {
	bucket, leaf, err := splitName(name)
	if err != nil {
		return err
	}
	now := time.Now()
	return chtimes(filepath.Join(s.root, bucket, leaf), now, now)
}

// Purge runs the same three sweeps as Normal.Purge.
func (s *Simple) Purge(maxTemp, maxLock time.Duration) error {
	return purge(s.base, purgeTarget{
		lockPath: func(name string) string {
			return filepath.Join(s.root, name) + lockSuffix
		},
		unlock: func(name string) error {
			_, err := s.Unlock(name, true)
			return err
		},
	}, maxTemp, maxLock)
}
