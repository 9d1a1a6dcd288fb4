// Package dirq implements a persistent, multi-producer/multi-consumer
// queue backed entirely by a POSIX filesystem: the directory tree itself
// is the storage, the coordination mechanism, and (via filesystem
// permissions) the security boundary.
//
// Elements are inserted atomically with Normal.Add or Simple.Add,
// iterated in lexical (best-effort FIFO) order with First/Next, claimed
// with an advisory mkdir-based lock, read, and removed. Purge reclaims
// stale temporary/obsolete staging entries and abandoned locks.
package dirq

import (
	"path/filepath"
	"sort"

	"github.com/fishy/dirq/internal/fsutil"
)

const (
	temporaryDir = "temporary"
	obsoleteDir  = "obsolete"
)

// base holds the identity, layout, and iterator-cursor state shared by
// Normal and Simple queues. It is never used directly by callers.
type base struct {
	opts     Options
	root     string
	identity []byte

	pendingBuckets  []string
	pendingElements []string
}

func openBase(opts Options) (*base, error) {
	root := opts.GetRoot()
	if opts.GetMaxElts() <= 0 {
		return nil, &InvalidOptionError{Reason: "MaxElts must be positive"}
	}

	err := withUmask(opts, func() error {
		if err := fsutil.MkdirAll(root, DefaultDirMode); err != nil {
			return err
		}
		if err := fsutil.MkdirAll(filepath.Join(root, temporaryDir), DefaultDirMode); err != nil {
			return err
		}
		return fsutil.MkdirAll(filepath.Join(root, obsoleteDir), DefaultDirMode)
	})
	if err != nil {
		return nil, err
	}

	id, err := fsutil.Identity(root)
	if err != nil {
		return nil, err
	}

	return &base{
		opts:     opts,
		root:     root,
		identity: id,
	}, nil
}

// Path returns the queue's root directory.
func (b *base) Path() string {
	return b.root
}

// ID returns the queue's stable identity: the (device, inode) pair of
// its root directory on platforms where that is trustworthy, or the
// canonicalized root path otherwise. Two handles opened on the same
// underlying directory always return equal IDs; handles on distinct
// queues never do (barring the weaker guarantee noted on non-POSIX
// filesystems).
func (b *base) ID() []byte {
	out := make([]byte, len(b.identity))
	copy(out, b.identity)
	return out
}

// copyCursor produces a fresh base sharing identity/options but with
// independent (empty) iterator cursor state, so each iterator handle
// never contends over pending-list state with another.
func (b *base) copyCursor() *base {
	return &base{
		opts:     b.opts,
		root:     b.root,
		identity: b.identity,
	}
}

// first rebuilds the pending-bucket list from a strict directory read
// (a missing queue root is fatal) and resets the pending-element list.
func (b *base) first() error {
	names, err := fsutil.ReadDir(b.root, true)
	if err != nil {
		return err
	}
	var buckets []string
	for _, name := range names {
		if bucketNameRe.MatchString(name) {
			buckets = append(buckets, name)
		}
	}
	sort.Strings(buckets)
	b.pendingBuckets = buckets
	b.pendingElements = nil
	return nil
}

// next pops and returns the next live element's bucket-relative path
// ("bucket/name"), or "" if iteration is exhausted. It tolerates a
// bucket vanishing under it (a concurrent purge may have retired an
// emptied bucket) by simply skipping to the next one.
func (b *base) next() (string, error) {
	for {
		if len(b.pendingElements) > 0 {
			name := b.pendingElements[0]
			b.pendingElements = b.pendingElements[1:]
			return name, nil
		}
		if len(b.pendingBuckets) == 0 {
			return "", nil
		}
		bucket := b.pendingBuckets[0]
		b.pendingBuckets = b.pendingBuckets[1:]

		names, err := fsutil.ReadDir(filepath.Join(b.root, bucket), false)
		if err != nil {
			return "", err
		}
		if names == nil {
			continue
		}
		var elements []string
		for _, name := range names {
			if elementNameRe.MatchString(name) {
				elements = append(elements, bucket+"/"+name)
			}
		}
		sort.Strings(elements)
		b.pendingElements = elements
	}
}

// listBuckets returns every bucket directory name under the queue root,
// sorted.
func (b *base) listBuckets() ([]string, error) {
	names, err := fsutil.ReadDir(b.root, true)
	if err != nil {
		return nil, err
	}
	var buckets []string
	for _, name := range names {
		if bucketNameRe.MatchString(name) {
			buckets = append(buckets, name)
		}
	}
	sort.Strings(buckets)
	return buckets, nil
}
