package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/specialistvlad/eppicbatch/internal/workunit"
	"github.com/spf13/afero"
)

// ExecutionRecord holds the start and end times for a single invocation.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// FakeExecutor records every invocation instead of running a process.
// Fn, when set, decides the outcome; otherwise every call exits 0.
type FakeExecutor struct {
	Fn func(ctx context.Context, inv workunit.Invocation) (int, error)

	mu          sync.Mutex
	invocations []workunit.Invocation
	records     map[string]*ExecutionRecord
}

func (f *FakeExecutor) Execute(ctx context.Context, inv workunit.Invocation) (int, error) {
	start := time.Now()
	code, err := 0, error(nil)
	if f.Fn != nil {
		code, err = f.Fn(ctx, inv)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.invocations = append(f.invocations, inv)
	if f.records == nil {
		f.records = make(map[string]*ExecutionRecord)
	}
	f.records[inv.Identifier] = &ExecutionRecord{Start: start, End: time.Now()}
	return code, err
}

// Calls returns how many times Execute ran.
func (f *FakeExecutor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.invocations)
}

// Invocations returns a copy of every recorded invocation.
func (f *FakeExecutor) Invocations() []workunit.Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]workunit.Invocation(nil), f.invocations...)
}

// Record returns the timing of the last invocation for identifier.
func (f *FakeExecutor) Record(identifier string) (*ExecutionRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[identifier]
	return r, ok
}

// WriteMarker returns an Fn that behaves like a successful analysis run: it
// creates the output directory passed after -o and the marker inside it.
func WriteMarker(fs afero.Fs) func(context.Context, workunit.Invocation) (int, error) {
	return func(_ context.Context, inv workunit.Invocation) (int, error) {
		out := ArgAfter(inv.Args, "-o")
		if err := fs.MkdirAll(out, 0o755); err != nil {
			return -1, err
		}
		if err := afero.WriteFile(fs, filepath.Join(out, workunit.MarkerName), nil, 0o644); err != nil {
			return -1, err
		}
		return 0, nil
	}
}

// ArgAfter returns the argument following flag in args, or "".
func ArgAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}
