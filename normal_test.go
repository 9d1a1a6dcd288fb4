package dirq_test

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fishy/dirq"
	"github.com/fishy/dirq/schema"
)

func tempRoot(t *testing.T) string {
	t.Helper()
	root, err := ioutil.TempDir("", "dirq_normal_")
	if err != nil {
		t.Fatalf("failed to get tmp dir: %v", err)
	}
	t.Cleanup(func() {
		os.RemoveAll(root)
	})
	return root
}

func testSchema(t *testing.T) schema.Schema {
	t.Helper()
	s, err := schema.Parse(map[string]string{
		"body":   "binary",
		"header": "table?",
		"blob":   "binary*?",
	})
	if err != nil {
		t.Fatalf("schema.Parse failed: %v", err)
	}
	return s
}

func openNormal(t *testing.T, s schema.Schema) *dirq.Normal {
	t.Helper()
	root := tempRoot(t)
	opts := dirq.NewOptions(root).SetSchema(s).Build()
	n, err := dirq.OpenNormal(opts)
	if err != nil {
		t.Fatalf("OpenNormal failed: %v", err)
	}
	return n
}

func TestOpenNormalRequiresSchema(t *testing.T) {
	opts := dirq.NewOptions(tempRoot(t)).Build()
	_, err := dirq.OpenNormal(opts)
	if !dirq.IsNoSchemaError(err) {
		t.Fatalf("OpenNormal without a schema should fail with NoSchemaError, got: %v", err)
	}
}

func TestOpenNormalRejectsInvalidSchema(t *testing.T) {
	opts := dirq.NewOptions(tempRoot(t)).SetSchema(schema.Schema{}).Build()
	_, err := dirq.OpenNormal(opts)
	if err == nil {
		t.Fatal("OpenNormal with an empty schema should fail validation")
	}
}

func TestNormalAddLockGetUnlockRemove(t *testing.T) {
	n := openNormal(t, testSchema(t))

	name, err := n.Add(schema.Fields{
		"body":   []byte("hello"),
		"header": map[string]string{"a": "1", "b": "2"},
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	ok, err := n.Lock(name)
	if err != nil || !ok {
		t.Fatalf("Lock failed: ok=%v err=%v", ok, err)
	}

	fields, err := n.Get(name)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got, want := fields["body"], []byte("hello"); !bytes.Equal(got.([]byte), want) {
		t.Errorf("body = %v, want %v", got, want)
	}
	header, ok := fields["header"].(map[string]string)
	if !ok || header["a"] != "1" || header["b"] != "2" {
		t.Errorf("header = %v, want map[a:1 b:2]", fields["header"])
	}
	if _, present := fields["blob"]; present {
		t.Errorf("optional unset field blob should be absent, got %v", fields["blob"])
	}

	if err := n.Remove(name); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if err := n.Remove(name); err == nil {
		t.Fatal("Remove after Remove should fail: element is no longer locked")
	}
}

func TestNormalAddMissingMandatoryField(t *testing.T) {
	n := openNormal(t, testSchema(t))
	_, err := n.Add(schema.Fields{"header": map[string]string{"a": "1"}})
	if !schema.IsMissingFieldError(err) {
		t.Fatalf("Add without the mandatory body field should fail, got: %v", err)
	}
}

func TestNormalAddUnknownField(t *testing.T) {
	n := openNormal(t, testSchema(t))
	_, err := n.Add(schema.Fields{"body": []byte("x"), "nope": []byte("y")})
	if !schema.IsInvalidFieldError(err) {
		t.Fatalf("Add with an undeclared field should fail, got: %v", err)
	}
}

func TestNormalAddByRefStreaming(t *testing.T) {
	n := openNormal(t, testSchema(t))
	payload := bytes.Repeat([]byte("z"), 5000)
	name, err := n.Add(schema.Fields{
		"body": []byte("x"),
		"blob": bytes.NewReader(payload),
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := n.Lock(name); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	fields, err := n.Get(name)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	rc, ok := fields["blob"].(io.ReadCloser)
	if !ok {
		t.Fatalf("blob should come back as an io.ReadCloser, got %T", fields["blob"])
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading blob failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("blob roundtrip mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestNormalGetWithoutLockFails(t *testing.T) {
	n := openNormal(t, testSchema(t))
	name, err := n.Add(schema.Fields{"body": []byte("x")})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := n.Get(name); !dirq.IsNotLockedError(err) {
		t.Fatalf("Get on an unlocked element should fail with NotLockedError, got: %v", err)
	}
}

func TestNormalLockTwiceIsPermissiveByDefault(t *testing.T) {
	n := openNormal(t, testSchema(t))
	name, err := n.Add(schema.Fields{"body": []byte("x")})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if ok, err := n.Lock(name); err != nil || !ok {
		t.Fatalf("first Lock failed: ok=%v err=%v", ok, err)
	}
	ok, err := n.Lock(name)
	if err != nil {
		t.Fatalf("second permissive Lock should not error, got: %v", err)
	}
	if ok {
		t.Fatal("second Lock on an already-locked element should report ok=false")
	}
	_, err = n.Lock(name, false)
	if err == nil {
		t.Fatal("second strict Lock on an already-locked element should fail")
	}
}

func TestNormalUnlockWithoutLockIsStrictByDefault(t *testing.T) {
	n := openNormal(t, testSchema(t))
	name, err := n.Add(schema.Fields{"body": []byte("x")})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := n.Unlock(name); err == nil {
		t.Fatal("strict Unlock on an unlocked element should fail")
	}
	ok, err := n.Unlock(name, true)
	if err != nil {
		t.Fatalf("permissive Unlock should not error, got: %v", err)
	}
	if ok {
		t.Fatal("permissive Unlock on an unlocked element should report ok=false")
	}
}

func TestNormalIterationOrderAndCount(t *testing.T) {
	n := openNormal(t, testSchema(t))
	var names []string
	for i := 0; i < 5; i++ {
		name, err := n.Add(schema.Fields{"body": []byte("x")})
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		names = append(names, name)
	}

	count, err := n.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 5 {
		t.Errorf("Count() = %d, want 5", count)
	}

	cursor := n.Copy()
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

func TestNormalTouch(t *testing.T) {
	n := openNormal(t, testSchema(t))
	name, err := n.Add(schema.Fields{"body": []byte("x")})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := n.Touch(name); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
}

func TestNormalPurgeStaleLockWarns(t *testing.T) {
	var warnings []dirq.Warning
	root := tempRoot(t)
	opts := dirq.NewOptions(root).
		SetSchema(testSchema(t)).
		SetWarnFunc(func(w dirq.Warning) { warnings = append(warnings, w) }).
		Build()
	n, err := dirq.OpenNormal(opts)
	if err != nil {
		t.Fatalf("OpenNormal failed: %v", err)
	}

	name, err := n.Add(schema.Fields{"body": []byte("x")})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := n.Lock(name); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	parts := strings.SplitN(name, "/", 2)
	lockDir := filepath.Join(root, parts[0], parts[1], "locked")
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(lockDir, old, old); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	if err := n.Purge(0, time.Minute); err != nil {
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

	locked, err := n.Lock(name)
	if err != nil {
		t.Fatalf("re-Lock after purge failed: %v", err)
	}
	if !locked {
		t.Error("element should be unlocked (and re-lockable) after a stale-lock purge")
	}
}
