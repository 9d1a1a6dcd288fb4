package dirq

import (
	"fmt"

	"github.com/fishy/dirq/internal/fsutil"
	"github.com/fishy/dirq/schema"
)

// Re-exported schema/data error predicates, so callers never need to
// import the schema package just to classify an error returned from
// this one.
var (
	IsMissingFieldError    = schema.IsMissingFieldError
	IsMalformedTableError  = schema.IsMalformedTableError
	IsInvalidEncodingError = schema.IsInvalidEncodingError
	IsInvalidFieldError    = schema.IsInvalidFieldError
)

// InvalidOptionError is a usage error: a bad OptionsBuilder value (e.g.
// a MaxElts that is not positive). A Normal queue opened with no schema
// is reported as *NoSchemaError instead.
type InvalidOptionError struct {
	Reason string
}

func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("dirq: invalid option: %s", e.Reason)
}

// IsInvalidOptionError reports whether err is an *InvalidOptionError.
func IsInvalidOptionError(err error) bool {
	_, ok := err.(*InvalidOptionError)
	return ok
}

// InvalidNameError is a usage error: an element name that doesn't match
// the 14-hex-digit lexicon, passed to Lock/Unlock/Get/Remove.
type InvalidNameError struct {
	Name string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("dirq: invalid element name %q", e.Name)
}

// IsInvalidNameError reports whether err is an *InvalidNameError.
func IsInvalidNameError(err error) bool {
	_, ok := err.(*InvalidNameError)
	return ok
}

// NoSchemaError is a usage error: a Normal queue was opened without a
// schema.
type NoSchemaError struct{}

func (e *NoSchemaError) Error() string {
	return "dirq: normal queue requires a schema"
}

// IsNoSchemaError reports whether err is a *NoSchemaError.
func IsNoSchemaError(err error) bool {
	_, ok := err.(*NoSchemaError)
	return ok
}

// NotLockedError is a usage error: Get or Remove was called on an
// element that the caller has not successfully Lock()ed.
type NotLockedError struct {
	Name string
}

func (e *NotLockedError) Error() string {
	return fmt.Sprintf("dirq: element %q is not locked", e.Name)
}

// IsNotLockedError reports whether err is a *NotLockedError.
func IsNotLockedError(err error) bool {
	_, ok := err.(*NotLockedError)
	return ok
}

// IOError is a fatal, unexpected filesystem failure: the syscall, path
// and cause are all preserved. It is a re-export of the internal
// fsutil.IOError type so callers never need to import internal packages
// to type-switch on it.
type IOError = fsutil.IOError

// IsIOError reports whether err is an *IOError.
func IsIOError(err error) bool {
	_, ok := err.(*fsutil.IOError)
	return ok
}
