package dirq

import (
	"path/filepath"
	"time"

	"github.com/fishy/dirq/internal/errbatch"
	"github.com/fishy/dirq/internal/fsutil"
)

// purgeTarget supplies the variant-specific details the shared purge
// sweeps need: where an element's lock marker lives (nested locked/
// for Normal, a sibling "<name>.lock" for Simple) and how to release
// one permissively.
type purgeTarget struct {
	lockPath func(name string) string
	unlock   func(name string) error
}

// purge implements the three sweeps from the component design: empty
// bucket retirement, stale temporary/obsolete reaping, and stale lock
// release. It is shared between Normal and Simple via the small
// purgeTarget capability value, rather than inheritance.
func purge(b *base, target purgeTarget, maxTemp, maxLock time.Duration) error {
	warn := b.opts.GetWarnFunc()
	batch := errbatch.New()

	if err := purgeEmptyBuckets(b, batch); err != nil {
		return err
	}
	if maxTemp > 0 {
		purgeStaleStaging(b, warn, batch, maxTemp)
	}
	if maxLock > 0 {
		if err := purgeStaleLocks(b, target, warn, batch, maxLock); err != nil {
			return err
		}
	}

	return batch.Compile()
}

func purgeEmptyBuckets(b *base, batch *errbatch.ErrBatch) error {
	buckets, err := b.listBuckets()
	if err != nil {
		return err
	}
	for i, bucket := range buckets {
		if i == len(buckets)-1 {
			// The highest-numbered bucket is always retained as the
			// insertion target, even if it happens to be empty.
			continue
		}
		path := filepath.Join(b.root, bucket)
		count, ok, err := fsutil.SubdirCount(path)
		if err != nil {
			batch.Add(err)
			continue
		}
		if !ok || count != 0 {
			continue
		}
		// A zero sub-directory count does not prove the bucket is empty
		// (Simple elements are plain files, and an Add may have landed
		// since the count); rmdir refuses a non-empty directory, so that
		// refusal just means the bucket stays.
		if _, err := fsutil.Rmdir(path); err != nil && !fsutil.IsNotEmpty(err) {
			batch.Add(err)
		}
	}
	return nil
}

func purgeStaleStaging(b *base, warn WarnFunc, batch *errbatch.ErrBatch, maxTemp time.Duration) {
	cutoff := time.Now().Add(-maxTemp)
	for _, staging := range []string{temporaryDir, obsoleteDir} {
		dir := filepath.Join(b.root, staging)
		entries, err := fsutil.ReadDir(dir, false)
		if err != nil {
			batch.Add(err)
			continue
		}
		for _, entry := range entries {
			path := filepath.Join(dir, entry)
			info, err := fsutil.Lstat(path)
			if err != nil {
				if isNotExist(err) {
					continue
				}
				batch.Add(err)
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
			warn(Warning{
				Kind:    StaleElement,
				Queue:   b.root,
				Element: staging + "/" + entry,
				Age:     time.Since(info.ModTime()),
			})
			if err := reapStalePath(path, info); err != nil {
				batch.Add(err)
			}
		}
	}
}

// reapStalePath removes a stale staging entry: a plain file (Simple
// queue temp payload) is just unlinked; a directory (Normal queue temp
// or obsolete element) has its field files unlinked, its locked/
// sub-directory removed if present, then is itself removed.
func reapStalePath(path string, info interface{ IsDir() bool }) error {
	if !info.IsDir() {
		return fsutil.Remove(path)
	}
	entries, err := fsutil.ReadDir(path, false)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry == "locked" {
			continue
		}
		if err := fsutil.Remove(filepath.Join(path, entry)); err != nil {
			return err
		}
	}
	if _, err := fsutil.Rmdir(filepath.Join(path, "locked")); err != nil {
		return err
	}
	_, err = fsutil.Rmdir(path)
	return err
}

func purgeStaleLocks(b *base, target purgeTarget, warn WarnFunc, batch *errbatch.ErrBatch, maxLock time.Duration) error {
	cutoff := time.Now().Add(-maxLock)
	iter := b.copyCursor()
	if err := iter.first(); err != nil {
		return err
	}
	for {
		name, err := iter.next()
		if err != nil {
			batch.Add(err)
			return nil
		}
		if name == "" {
			return nil
		}
		lockPath := target.lockPath(name)
		info, err := fsutil.Lstat(lockPath)
		if err != nil {
			if isNotExist(err) {
				continue
			}
			batch.Add(err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		warn(Warning{
			Kind:    StaleLock,
			Queue:   b.root,
			Element: name,
			Age:     time.Since(info.ModTime()),
		})
		if err := target.unlock(name); err != nil {
			batch.Add(err)
		}
	}
}
