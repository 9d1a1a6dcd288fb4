// Package errbatch provides ErrBatch, which compiles multiple errors
// collected during a single sweep (e.g. a purge pass unlinking several
// stale entries) into one error.
package errbatch

import (
	"bytes"
	"fmt"
)

// ErrBatch is an error that can contain multiple errors.
type ErrBatch struct {
	errors []error
}

// New creates a new, empty ErrBatch.
func New() *ErrBatch {
	return &ErrBatch{}
}

// Error satisfies the error interface.
func (eb *ErrBatch) Error() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "total %d error(s) in this batch", len(eb.errors))
	for i, err := range eb.errors {
		if i == 0 {
			buf.WriteString(": ")
		} else {
			buf.WriteString("; ")
		}
		buf.WriteString(err.Error())
	}
	return buf.String()
}

// Add adds an error to the batch. If err is itself an *ErrBatch, its
// underlying errors are flattened in rather than nesting. Nil errors are
// skipped.
func (eb *ErrBatch) Add(err error) {
	if err == nil {
		return
	}
	if batch, ok := err.(*ErrBatch); ok {
		eb.errors = append(eb.errors, batch.errors...)
		return
	}
	eb.errors = append(eb.errors, err)
}

// Compile returns nil if the batch is empty, the single underlying error
// if it contains exactly one, or the batch itself otherwise.
func (eb *ErrBatch) Compile() error {
	switch len(eb.errors) {
	case 0:
		return nil
	case 1:
		return eb.errors[0]
	default:
		return eb
	}
}

// Errors returns a copy of the underlying errors.
func (eb *ErrBatch) Errors() []error {
	ret := make([]error, len(eb.errors))
	copy(ret, eb.errors)
	return ret
}
