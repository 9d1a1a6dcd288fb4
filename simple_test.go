package dirq_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fishy/dirq"
)

func openSimple(t *testing.T) *dirq.Simple {
	t.Helper()
	root := tempRoot(t)
	opts := dirq.NewOptions(root).Build()
	s, err := dirq.OpenSimple(opts)
	if err != nil {
		t.Fatalf("OpenSimple failed: %v", err)
	}
	return s
}

func TestSimpleAddLockGetUnlockRemove(t *testing.T) {
	s := openSimple(t)

	name, err := s.Add(bytes.NewReader([]byte("payload")))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	ok, err := s.Lock(name)
	if err != nil || !ok {
		t.Fatalf("Lock failed: ok=%v err=%v", ok, err)
	}

	rc, err := s.Get(name)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	got, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("reading payload failed: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("Get() = %q, want %q", got, "payload")
	}

	if err := s.Remove(name); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := s.Remove(name); err == nil {
		t.Fatal("Remove after Remove should fail: element is no longer locked")
	}
}

func TestSimpleGetWithoutLockFails(t *testing.T) {
	s := openSimple(t)
	name, err := s.Add(bytes.NewReader([]byte("x")))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := s.Get(name); !dirq.IsNotLockedError(err) {
		t.Fatalf("Get on an unlocked element should fail with NotLockedError, got: %v", err)
	}
}

func TestSimpleLockTwiceIsPermissiveByDefault(t *testing.T) {
	s := openSimple(t)
	name, err := s.Add(bytes.NewReader([]byte("x")))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if ok, err := s.Lock(name); err != nil || !ok {
		t.Fatalf("first Lock failed: ok=%v err=%v", ok, err)
	}
	ok, err := s.Lock(name)
	if err != nil {
		t.Fatalf("second permissive Lock should not error, got: %v", err)
	}
	if ok {
		t.Fatal("second Lock on an already-locked element should report ok=false")
	}
}

func TestSimpleUnlockWithoutLockIsStrictByDefault(t *testing.T) {
	s := openSimple(t)
	name, err := s.Add(bytes.NewReader([]byte("x")))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := s.Unlock(name); err == nil {
		t.Fatal("strict Unlock on an unlocked element should fail")
	}
	ok, err := s.Unlock(name, true)
	if err != nil {
		t.Fatalf("permissive Unlock should not error, got: %v", err)
	}
	if ok {
		t.Fatal("permissive Unlock on an unlocked element should report ok=false")
	}
}

func TestSimpleIterationOrderAndCount(t *testing.T) {
	s := openSimple(t)
	var names []string
	for i := 0; i < 5; i++ {
		name, err := s.Add(bytes.NewReader([]byte("x")))
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		names = append(names, name)
	}

	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 5 {
		t.Errorf("Count() = %d, want 5", count)
	}

	cursor := s.Copy()
	var seen []string
	name, err := cursor.First()
	for name != "" {
		if err != nil {
			t.Fatalf("iteration failed: %v", err)
		}
		seen = append(seen, name)
		name, err = cursor.Next()
	}
	if len(seen) != len(names) {
		t.Fatalf("iterated %d elements, want %d", len(seen), len(names))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i-1] >= seen[i] {
			t.Errorf("iteration order not increasing: %q then %q", seen[i-1], seen[i])
		}
	}
}

func TestSimpleLargePayloadStreaming(t *testing.T) {
	s := openSimple(t)
	payload := bytes.Repeat([]byte("q"), 50000) // spans multiple chunk-pool buffers
	name, err := s.Add(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := s.Lock(name); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	rc, err := s.Get(name)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading payload failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload roundtrip mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestSimpleTouch(t *testing.T) {
	s := openSimple(t)
	name, err := s.Add(bytes.NewReader([]byte("x")))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := s.Touch(name); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
}

func TestSimplePurgeStaleLockWarns(t *testing.T) {
	var warnings []dirq.Warning
	root := tempRoot(t)
	opts := dirq.NewOptions(root).
		SetWarnFunc(func(w dirq.Warning) { warnings = append(warnings, w) }).
		Build()
	s, err := dirq.OpenSimple(opts)
	if err != nil {
		t.Fatalf("OpenSimple failed: %v", err)
	}

	name, err := s.Add(bytes.NewReader([]byte("x")))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := s.Lock(name); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	parts := strings.SplitN(name, "/", 2)
	lockDir := filepath.Join(root, parts[0], parts[1]) + ".lock"
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(lockDir, old, old); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	if err := s.Purge(0, time.Minute); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}

	found := false
	for _, w := range warnings {
		if w.Kind == dirq.StaleLock && w.Element == name {
			found = true
		}
	}
	if !found {
		t.Errorf("Purge should have warned about the stale lock on %q, warnings: %v", name, warnings)
	}

	locked, err := s.Lock(name)
	if err != nil {
		t.Fatalf("re-Lock after purge failed: %v", err)
	}
	if !locked {
		t.Error("element should be unlocked (and re-lockable) after a stale-lock purge")
	}
}

func TestSimplePurgeStaleStagingReapsTempFile(t *testing.T) {
	root := tempRoot(t)
	opts := dirq.NewOptions(root).Build()
	s, err := dirq.OpenSimple(opts)
	if err != nil {
		t.Fatalf("OpenSimple failed: %v", err)
	}

	stalePath := filepath.Join(root, "temporary", "0000000000dead")
	if err := os.WriteFile(stalePath, []byte("orphan"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(stalePath, old, old); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	if err := s.Purge(time.Minute, 0); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if _, err := os.Stat(stalePath); !os.IsNotExist(err) {
		t.Errorf("stale temporary file should have been reaped, stat err: %v", err)
	}
}
