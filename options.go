package dirq

import (
	"log"
	"os"
	"path/filepath"

	"github.com/fishy/dirq/schema"
)

// Default option values.
const (
	DefaultMaxElts           = 16000
	DefaultRemoveRetryLimit  = 20
	DefaultDirMode  os.FileMode = 0700
	DefaultFileMode os.FileMode = 0600
)

// Options is a read-only view of the settings a queue was opened with.
type Options interface {
	// GetRoot returns the absolute, cleaned queue root path.
	GetRoot() string

	// GetUmask returns the umask to install (via internal/fsutil.WithUmask)
	// around every create operation. A nil value means "inherit the
	// process umask, don't override it".
	GetUmask() *os.FileMode

	// GetMaxElts returns the maximum number of elements a bucket may hold
	// before a new one is created.
	GetMaxElts() int

	// GetSchema returns the schema for a Normal queue. It is nil for a
	// Simple queue, and it is an error (NoSchemaError) to Open a Normal
	// queue without one.
	GetSchema() schema.Schema

	// GetWarnFunc returns the sink purge sends Warning values to. It is
	// never nil: when the caller hasn't set one, a discarding WarnFunc is
	// used.
	GetWarnFunc() WarnFunc

	// GetRemoveRetryLimit returns the bound on Remove's re-lock race
	// retry loop.
	GetRemoveRetryLimit() int
}

// OptionsBuilder is the read-write view used to construct Options.
type OptionsBuilder interface {
	Options

	// Build freezes the builder into a read-only Options.
	Build() Options

	SetUmask(mask os.FileMode) OptionsBuilder
	SetMaxElts(n int) OptionsBuilder
	SetSchema(s schema.Schema) OptionsBuilder
	SetWarnFunc(f WarnFunc) OptionsBuilder
	SetLogger(logger *log.Logger) OptionsBuilder
	SetRemoveRetryLimit(n int) OptionsBuilder
}

type options struct {
	root             string
	umask            *os.FileMode
	maxElts          int
	schema           schema.Schema
	warnFunc         WarnFunc
	removeRetryLimit int
}

// NewOptions creates an OptionsBuilder rooted at root with default
// values: MaxElts=16000, no umask override, no schema, warnings
// discarded, remove retry limit 20.
func NewOptions(root string) OptionsBuilder {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	return &options{
		root:             filepath.Clean(abs),
		maxElts:          DefaultMaxElts,
		warnFunc:         discardWarnings,
		removeRetryLimit: DefaultRemoveRetryLimit,
	}
}

func (o *options) GetRoot() string               { return o.root }
func (o *options) GetUmask() *os.FileMode        { return o.umask }
func (o *options) GetMaxElts() int               { return o.maxElts }
func (o *options) GetSchema() schema.Schema      { return o.schema }
func (o *options) GetWarnFunc() WarnFunc         { return o.warnFunc }
func (o *options) GetRemoveRetryLimit() int      { return o.removeRetryLimit }

func (o *options) Build() Options { return o }

func (o *options) SetUmask(mask os.FileMode) OptionsBuilder {
	o.umask = &mask
	return o
}

func (o *options) SetMaxElts(n int) OptionsBuilder {
	o.maxElts = n
	return o
}

func (o *options) SetSchema(s schema.Schema) OptionsBuilder {
	o.schema = s
	return o
}

func (o *options) SetWarnFunc(f WarnFunc) OptionsBuilder {
	if f == nil {
		f = discardWarnings
	}
	o.warnFunc = f
	return o
}

func (o *options) SetLogger(logger *log.Logger) OptionsBuilder {
	o.warnFunc = LogWarnFunc(logger)
	return o
}

func (o *options) SetRemoveRetryLimit(n int) OptionsBuilder {
	o.removeRetryLimit = n
	return o
}
