package dirq

import (
	"testing"
)

func TestNewElementNameFormat(t *testing.T) {
	name := newElementName()
	if !elementNameRe.MatchString(name) {
		t.Errorf("newElementName() = %q, does not match %v", name, elementNameRe)
	}
	if len(name) != 14 {
		t.Errorf("newElementName() length = %d, want 14", len(name))
	}
}

func TestNewElementNameUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		seen[newElementName()] = true
	}
	// Names minted in a tight loop from a single goroutine can collide
	// within the same microsecond; that's expected and handled by the
	// mkdir/rename retry loops, not by newElementName itself. We only
	// assert that collisions aren't the overwhelming common case.
	if len(seen) < 500 {
		t.Errorf("newElementName produced only %d distinct names out of 1000 calls", len(seen))
	}
}

func TestNextBucketName(t *testing.T) {
	cases := map[string]string{
		"00000000": "00000001",
		"0000000f": "00000010",
		"000000ff": "00000100",
	}
	for in, want := range cases {
		got, err := nextBucketName(in)
		if err != nil {
			t.Fatalf("nextBucketName(%q) failed: %v", in, err)
		}
		if got != want {
			t.Errorf("nextBucketName(%q) = %q, want %q", in, got, want)
		}
		if !bucketNameRe.MatchString(got) {
			t.Errorf("nextBucketName(%q) = %q, does not match %v", in, got, bucketNameRe)
		}
	}
}

func TestNextBucketNameInvalid(t *testing.T) {
	if _, err := nextBucketName("not-hex!"); err == nil {
		t.Error("nextBucketName on a malformed bucket name should fail")
	}
}
