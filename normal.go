package dirq

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fishy/dirq/internal/fsutil"
	"github.com/fishy/dirq/internal/rowlock"
	"github.com/fishy/dirq/schema"
)

// Normal is a schema-bearing queue: each element is a directory holding
// one regular file per schema field, plus a locked/ sub-directory while
// an element is claimed.
type Normal struct {
	*base
	schema schema.Schema

	// elementLocks serializes in-process Lock/Unlock attempts on
	// the same element name between goroutines sharing this handle, to
	// avoid wasted mkdir/rename retries. It has no effect across
	// processes: the cross-process mutex remains mkdir of locked/.
	elementLocks *rowlock.RowLock

	// bucketMu serializes in-process insertion-bucket selection between
	// concurrent Add calls on this handle, for the same reason.
	bucketMu sync.Mutex
}

// OpenNormal opens (creating if necessary) a Normal queue rooted at the
// path in opts. opts must carry a valid schema.
func OpenNormal(opts Options) (*Normal, error) {
	s := opts.GetSchema()
	if s == nil {
		return nil, &NoSchemaError{}
	}
	if err := schema.Validate(s); err != nil {
		return nil, err
	}
	b, err := openBase(opts)
	if err != nil {
		return nil, err
	}
	return &Normal{
		base:         b,
		schema:       s,
		elementLocks: rowlock.New(),
	}, nil
}

// Copy returns an independent iterator handle: it shares identity,
// options and schema with n, but has its own (initially empty) cursor
// state.
func (n *Normal) Copy() *Normal {
	return &Normal{
		base:         n.base.copyCursor(),
		schema:       n.schema,
		elementLocks: n.elementLocks,
	}
}

// First resets the iterator to the first live element and returns it
// ("bucket/name"), or "" if the queue is empty.
func (n *Normal) First() (string, error) {
	if err := n.first(); err != nil {
		return "", err
	}
	return n.next()
}

// Next advances the iterator and returns the next live element
// ("bucket/name"), or "" once exhausted.
func (n *Normal) Next() (string, error) {
	return n.next()
}

// Count returns the (transient, not point-in-time-consistent) number of
// live elements across all buckets.
func (n *Normal) Count() (int, error) {
	buckets, err := n.listBuckets()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, bucket := range buckets {
		count, ok, err := fsutil.SubdirCount(filepath.Join(n.root, bucket))
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

// Add validates fields against the queue's schema, writes them into a
// fresh temporary/ directory, and atomically rename()s that directory
// into the current insertion bucket. It returns the new element's
// "bucket/name".
//
// Values in fields must match their field's type: []byte or io.Reader
// for binary, string/[]byte/io.Reader for string, map[string]string for
// table. Passing an io.Reader for a ByRef field streams it straight to
// disk without buffering the whole value in memory.
func (n *Normal) Add(fields schema.Fields) (string, error) {
	for name := range fields {
		if _, ok := n.schema[name]; !ok {
			return "", &schema.InvalidFieldError{Field: name, Reason: "not declared in schema"}
		}
	}
	for name, f := range n.schema {
		if !f.Optional {
			if _, ok := fields[name]; !ok {
				return "", &schema.MissingFieldError{Field: name}
			}
		}
	}

	tempDir, name, err := n.claimTempDir()
	if err != nil {
		return "", err
	}
	ok := false
	defer func() {
		if !ok {
			removeAll(tempDir)
		}
	}()

	err = withUmask(n.opts, func() error {
		for fieldName, f := range n.schema {
			value, present := fields[fieldName]
			if !present {
				continue
			}
			if err := writeField(filepath.Join(tempDir, fieldName), f, fieldName, value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	bucketName, err := n.claimBucket()
	if err != nil {
		return "", err
	}

	for {
		target := filepath.Join(n.root, bucketName, name)
		renamed, err := fsutil.Rename(tempDir, target)
		if err != nil {
			return "", err
		}
		if renamed {
			ok = true
			return bucketName + "/" + name, nil
		}
		// Another process claimed `name` in this bucket in the same
		// microsecond; the temporary directory and its field files are
		// still intact, so just mint a fresh name and retry the rename
		// under it rather than rebuilding the fields from scratch.
		name = newElementName()
	}
}

// claimTempDir repeatedly mints a name and mkdirs temporary/<name>
// until one is uncontended.
func (n *Normal) claimTempDir() (dir string, name string, err error) {
	for {
		name = newElementName()
		dir = filepath.Join(n.root, temporaryDir, name)
		var res fsutil.MkdirResult
		err = withUmask(n.opts, func() error {
			var err error
			res, err = fsutil.Mkdir(dir, DefaultDirMode)
			return err
		})
		if err != nil {
			return "", "", err
		}
		if res == fsutil.Created {
			return dir, name, nil
		}
		// Exists (same-microsecond collision) or Missing (temporary/ itself
		// is gone, shouldn't happen but is cheap to just retry) -> retry.
	}
}

// claimBucket selects the bucket a new element should be inserted into,
// per the rules in the component design: the highest-named bucket if it
// still has room, otherwise a freshly created next bucket.
func (n *Normal) claimBucket() (string, error) {
	n.bucketMu.Lock()
	defer n.bucketMu.Unlock()

	for {
		buckets, err := n.listBuckets()
		if err != nil {
			return "", err
		}
		if len(buckets) == 0 {
			const first = "00000000"
			err := withUmask(n.opts, func() error {
				_, err := fsutil.Mkdir(filepath.Join(n.root, first), DefaultDirMode)
				return err
			})
			if err != nil {
				return "", err
			}
			return first, nil
		}

		last := buckets[len(buckets)-1]
		count, ok, err := fsutil.SubdirCount(filepath.Join(n.root, last))
		if err != nil {
			return "", err
		}
		if !ok {
			// The highest bucket vanished under us (a concurrent purge
			// retired it right after we listed it); loop and re-list.
			continue
		}
		if count < n.opts.GetMaxElts() {
			return last, nil
		}

		next, err := nextBucketName(last)
		if err != nil {
			return "", err
		}
		var res fsutil.MkdirResult
		err = withUmask(n.opts, func() error {
			var err error
			res, err = fsutil.Mkdir(filepath.Join(n.root, next), DefaultDirMode)
			return err
		})
		if err != nil {
			return "", err
		}
		if res == fsutil.Exists {
			// Someone else already created it (or is still filling the
			// previous one past maxelts, which is harmless); either way,
			// it's now usable.
		}
		return next, nil
	}
}

// Lock attempts to claim the advisory lock on name by creating its
// locked/ marker directory. permissive defaults to true: EEXIST (already
// locked) and ENOENT (element gone) are reported as a false return
// rather than an error. Pass false to make those cases fatal instead.
func (n *Normal) Lock(name string, permissive ...bool) (bool, error) {
	strict := !optBool(permissive, true)
	bucket, leaf, err := splitName(name)
	if err != nil {
		return false, err
	}

	n.elementLocks.Lock(name)
	defer n.elementLocks.Unlock(name)

	elementDir := filepath.Join(n.root, bucket, leaf)
	lockDir := filepath.Join(elementDir, "locked")

	var res fsutil.MkdirResult
	err = withUmask(n.opts, func() error {
		var err error
		res, err = fsutil.Mkdir(lockDir, DefaultDirMode)
		return err
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

	// Created: guard against the re-used-inode race described in the
	// component design by re-checking the parent still exists.
	if _, err := fsutil.Lstat(elementDir); err != nil {
		if isNotExist(err) {
			fsutil.Rmdir(lockDir)
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Unlock releases the advisory lock on name by removing its locked/
// marker directory. permissive defaults to false (strict): ENOENT is
// fatal unless the caller passes true, because Unlock is ordinarily
// called by the lock holder and a missing lock means a bug.
func (n *Normal) Unlock(name string, permissive ...bool) (bool, error) {
	lenient := optBool(permissive, false)
	bucket, leaf, err := splitName(name)
	if err != nil {
		return false, err
	}

	n.elementLocks.Lock(name)
	defer n.elementLocks.Unlock(name)

	lockDir := filepath.Join(n.root, bucket, leaf, "locked")
	res, err := fsutil.Rmdir(lockDir)
	if err != nil {
		return false, err
	}
	if res == fsutil.Missing && !lenient {
		return false, &fsutil.IOError{Op: "rmdir", Path: lockDir, Err: fmt.Errorf("not locked")}
	}
	return res == fsutil.Removed, nil
}

// isLocked reports whether name currently carries a locked/ marker.
func (n *Normal) isLocked(name string) (bool, error) {
	bucket, leaf, err := splitName(name)
	if err != nil {
		return false, err
	}
	lockDir := filepath.Join(n.root, bucket, leaf, "locked")
	info, err := fsutil.Lstat(lockDir)
	if err != nil {
		if isNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// Get reads and decodes every schema field of name, which must already
// be locked by the caller. ByRef binary/string fields come back as an
// io.ReadCloser the caller must Close; every other field comes back
// fully decoded.
func (n *Normal) Get(name string) (schema.Fields, error) {
	locked, err := n.isLocked(name)
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
	elementDir := filepath.Join(n.root, bucket, leaf)

	out := make(schema.Fields, len(n.schema))
	for fieldName, f := range n.schema {
		path := filepath.Join(elementDir, fieldName)

		if f.ByRef && f.Type != schema.Table {
			file, err := openReader(path)
			if err != nil {
				if isNotExist(err) {
					if f.Optional {
						continue
					}
					return nil, &schema.MissingFieldError{Field: fieldName}
				}
				return nil, err
			}
			out[fieldName] = file
			continue
		}

		data, err := fsutil.ReadFile(path)
		if err != nil {
			if isNotExist(err) {
				if f.Optional {
					continue
				}
				return nil, &schema.MissingFieldError{Field: fieldName}
			}
			return nil, err
		}
		value, err := schema.Decode(fieldName, f, data)
		if err != nil {
			return nil, err
		}
		out[fieldName] = value
	}
	return out, nil
}

// Remove deletes name, which must already be locked by the caller. It
// stages the element through obsolete/ before tearing it down, per the
// component design, and bounds the re-lock race retry loop described
// there to opts.GetRemoveRetryLimit() attempts.
func (n *Normal) Remove(name string) error {
	locked, err := n.isLocked(name)
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
	elementDir := filepath.Join(n.root, bucket, leaf)

	var obsoleteDirPath string
	for {
		obsoleteName := newElementName()
		obsoleteDirPath = filepath.Join(n.root, obsoleteDir, obsoleteName)
		renamed, err := fsutil.Rename(elementDir, obsoleteDirPath)
		if err != nil {
			return err
		}
		if renamed {
			break
		}
	}

	entries, err := fsutil.ReadDir(obsoleteDirPath, false)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry == "locked" {
			continue
		}
		if err := fsutil.Remove(filepath.Join(obsoleteDirPath, entry)); err != nil {
			return err
		}
	}

	limit := n.opts.GetRemoveRetryLimit()
	backoff := time.Millisecond
	for attempt := 0; ; attempt++ {
		if _, err := fsutil.Rmdir(filepath.Join(obsoleteDirPath, "locked")); err != nil {
			return err
		}
		res, err := fsutil.Rmdir(obsoleteDirPath)
		if err != nil && !fsutil.IsNotEmpty(err) {
			return err
		}
		if err == nil && res == fsutil.Removed {
			return nil
		}
		// ENOTEMPTY: a process that had this element's old path open
		// re-acquired "locked/" on the renamed directory right after we
		// removed it above. Loop: remove it again and retry.
		if attempt+1 >= limit {
			return &fsutil.IOError{
				Op:   "rmdir",
				Path: obsoleteDirPath,
				Err:  fmt.Errorf("lock re-acquisition race did not converge after %d attempts", limit),
			}
		}
		time.Sleep(backoff)
		backoff *= 2
		if backoff > 100*time.Millisecond {
			backoff = 100 * time.Millisecond
		}
	}
}

// Touch sets the access and modification times of name's element
// directory to now, without otherwise changing it. Purge does not read
// these times: its stale-lock sweep goes by the locked/ marker's mtime,
// and its stale-staging sweep only looks inside temporary/ and obsolete/.
func (n *Normal) Touch(name string) error {
	bucket, leaf, err := splitName(name)
	if err != nil {
		return err
	}
	path := filepath.Join(n.root, bucket, leaf)
	now := time.Now()
	if err := chtimes(path, now, now); err != nil {
		return err
	}
	return nil
}

// Purge runs the three sweeps described in the component design:
// empty-bucket retirement, stale temporary/obsolete reaping, and stale
// lock release. maxTemp/maxLock of zero disable the corresponding sweep.
func (n *Normal) Purge(maxTemp, maxLock time.Duration) error {
	return purge(n.base, purgeTarget{
		lockPath: func(name string) string {
			return filepath.Join(n.root, name, "locked")
		},
		unlock: func(name string) error {
			_, err := n.Unlock(name, true)
			return err
		},
	}, maxTemp, maxLock)
}

// writeField validates value against f and writes it to path.
func writeField(path string, f schema.Field, name string, value interface{}) error {
	if f.Type == schema.Table {
		m, ok := value.(map[string]string)
		if !ok {
			return &schema.InvalidFieldError{Field: name, Reason: "table field requires a map[string]string value"}
		}
		return fsutil.WriteFile(path, bytes.NewReader(schema.EncodeTable(m)), DefaultFileMode)
	}

	if r, ok := value.(io.Reader); ok {
		if f.Type == schema.String && !f.ByRef {
			data, err := io.ReadAll(r)
			if err != nil {
				return err
			}
			encoded, err := schema.Encode(name, f, data)
			if err != nil {
				return err
			}
			return fsutil.WriteFile(path, bytes.NewReader(encoded), DefaultFileMode)
		}
		return fsutil.WriteFile(path, r, DefaultFileMode)
	}

	encoded, err := schema.Encode(name, f, value)
	if err != nil {
		return err
	}
	return fsutil.WriteFile(path, bytes.NewReader(encoded), DefaultFileMode)
}

// splitName parses "bucket/leaf" into its two regex-validated parts.
func splitName(name string) (bucket, leaf string, err error) {
	parts := strings.SplitN(name, "/", 2)
	if len(parts) != 2 || !bucketNameRe.MatchString(parts[0]) || !elementNameRe.MatchString(parts[1]) {
		return "", "", &InvalidNameError{Name: name}
	}
	return parts[0], parts[1], nil
}

func optBool(vals []bool, def bool) bool {
	if len(vals) == 0 {
		return def
	}
	return vals[0]
}

func removeAll(dir string) {
	entries, err := fsutil.ReadDir(dir, false)
	if err != nil {
		return
	}
	for _, e := range entries {
		fsutil.Remove(filepath.Join(dir, e))
	}
	fsutil.Rmdir(dir)
}
