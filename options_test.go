package dirq_test

import (
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/fishy/dirq"
	"github.com/fishy/dirq/schema"
)

func TestNewOptionsDefaults(t *testing.T) {
	opts := dirq.NewOptions("relative/path").Build()
	if !filepath.IsAbs(opts.GetRoot()) {
		t.Errorf("GetRoot() = %q, want an absolute path", opts.GetRoot())
	}
	if opts.GetMaxElts() != dirq.DefaultMaxElts {
		t.Errorf("GetMaxElts() = %d, want %d", opts.GetMaxElts(), dirq.DefaultMaxElts)
	}
	if opts.GetRemoveRetryLimit() != dirq.DefaultRemoveRetryLimit {
		t.Errorf("GetRemoveRetryLimit() = %d, want %d", opts.GetRemoveRetryLimit(), dirq.DefaultRemoveRetryLimit)
	}
	if opts.GetUmask() != nil {
		t.Errorf("GetUmask() = %v, want nil", opts.GetUmask())
	}
	if opts.GetSchema() != nil {
		t.Errorf("GetSchema() = %v, want nil", opts.GetSchema())
	}
	if opts.GetWarnFunc() == nil {
		t.Error("GetWarnFunc() should never be nil")
	}
}

func TestOptionsBuilderSetters(t *testing.T) {
	mask := os.FileMode(0022)
	s := schema.Schema{"body": {Type: schema.Binary}}
	called := false

	opts := dirq.NewOptions("/tmp/queue").
		SetUmask(mask).
		SetMaxElts(42).
		SetSchema(s).
		SetWarnFunc(func(dirq.Warning) { called = true }).
		SetRemoveRetryLimit(5).
		Build()

	if opts.GetUmask() == nil || *opts.GetUmask() != mask {
		t.Errorf("GetUmask() = %v, want %v", opts.GetUmask(), mask)
	}
	if opts.GetMaxElts() != 42 {
		t.Errorf("GetMaxElts() = %d, want 42", opts.GetMaxElts())
	}
	if len(opts.GetSchema()) != 1 {
		t.Errorf("GetSchema() = %v, want the schema set above", opts.GetSchema())
	}
	if opts.GetRemoveRetryLimit() != 5 {
		t.Errorf("GetRemoveRetryLimit() = %d, want 5", opts.GetRemoveRetryLimit())
	}

	opts.GetWarnFunc()(dirq.Warning{})
	if !called {
		t.Error("SetWarnFunc's function was not installed")
	}
}

func TestSetWarnFuncNilFallsBackToDiscard(t *testing.T) {
	opts := dirq.NewOptions("/tmp/queue").SetWarnFunc(nil).Build()
	// Must not panic.
	opts.GetWarnFunc()(dirq.Warning{Kind: dirq.StaleLock})
}

func TestSetLoggerDelegatesToLogWarnFunc(t *testing.T) {
	logger := log.New(os.Stderr, "", 0)
	opts := dirq.NewOptions("/tmp/queue").SetLogger(logger).Build()
	// Must not panic, and must actually call through to the logger path.
	opts.GetWarnFunc()(dirq.Warning{Kind: dirq.StaleElement, Queue: "q", Element: "e"})
}
