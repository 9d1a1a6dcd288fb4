package dirq

import (
	"fmt"
	"os"
	"regexp"
	"time"
)

// elementNameRe matches a live element's 14 hex digit leaf name:
// 8 digits of seconds, 5 of microseconds, 1 PID-derived digit.
var elementNameRe = regexp.MustCompile(`^[0-9a-f]{14}$`)

// bucketNameRe matches an 8 hex digit intermediate bucket name.
var bucketNameRe = regexp.MustCompile(`^[0-9a-f]{8}$`)

// newElementName returns a 14-hex-digit name built from the current
// time and this process's PID. Two calls within the same microsecond by
// the same process can collide; callers must treat EEXIST/ENOTEMPTY on
// the claiming rename/mkdir as a retryable race, not an error.
func newElementName() string {
	now := time.Now()
	seconds := uint32(now.Unix())
	micros := uint32(now.Nanosecond() / 1000) // 0..999999, fits in 20 bits
	pidDigit := os.Getpid() % 16
	return fmt.Sprintf("%08x%05x%x", seconds, micros&0xFFFFF, pidDigit)
}

// nextBucketName returns the bucket name numerically following name.
func nextBucketName(name string) (string, error) {
	var n uint64
	if _, err := fmt.Sscanf(name, "%08x", &n); err != nil {
		return "", err
	}
	return fmt.Sprintf("%08x", n+1), nil
}
