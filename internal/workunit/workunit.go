// Package workunit turns one identifier into a schedulable task that runs the
// analysis tool and declares itself complete from the filesystem.
//
// Where the tool actually runs is decided by an Executor: a local process or
// a cluster job. The Task itself owns the state machine shared by both:
// skip when complete, prepare directories, record the command, invoke, and
// classify the outcome.
package workunit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apparentlymart/go-shquot/shquot"
	"github.com/specialistvlad/eppicbatch/internal/ctxlog"
	"github.com/specialistvlad/eppicbatch/internal/task"
	"github.com/spf13/afero"
)

// Invocation is one run of the analysis tool.
type Invocation struct {
	Identifier string
	Args       []string
	// LogPath, when set, already holds the CMD header; the executor appends
	// stdout and stderr to it.
	LogPath string
}

// Executor runs an invocation to completion and reports its exit code. An
// error means the exit code could not be obtained at all.
type Executor interface {
	Execute(ctx context.Context, inv Invocation) (int, error)
}

// Options describes one work unit.
type Options struct {
	Identifier string
	// OutputDir is usually derived with OutputDir.
	OutputDir string
	// LogPath is optional.
	LogPath   string
	Toolchain Toolchain
	// Requires are the tasks that gate this unit, typically the config
	// file and the jar.
	Requires []task.Task
}

// Task processes one identifier.
type Task struct {
	fs       afero.Fs
	executor Executor
	opts     Options
}

// New returns a work unit that runs through executor.
func New(fs afero.Fs, executor Executor, opts Options) *Task {
	return &Task{fs: fs, executor: executor, opts: opts}
}

func (t *Task) ID() string {
	return fmt.Sprintf("workunit[%s]", t.opts.Identifier)
}

func (t *Task) Requires() []task.Task {
	return t.opts.Requires
}

// Identifier returns the identifier this unit processes.
func (t *Task) Identifier() string {
	return t.opts.Identifier
}

// OutputDir returns the unit's output directory.
func (t *Task) OutputDir() string {
	return t.opts.OutputDir
}

// LogPath returns the log file, or "" when logging is off.
func (t *Task) LogPath() string {
	return t.opts.LogPath
}

// MarkerPath returns the completion marker.
func (t *Task) MarkerPath() string {
	return filepath.Join(t.opts.OutputDir, MarkerName)
}

// Command returns the argv this unit runs.
func (t *Task) Command() []string {
	return t.opts.Toolchain.Command(t.opts.Identifier, t.opts.OutputDir)
}

// Complete holds when the output directory and the marker inside it both
// exist.
func (t *Task) Complete(_ context.Context) (bool, error) {
	dirOK, err := afero.DirExists(t.fs, t.opts.OutputDir)
	if err != nil || !dirOK {
		return false, err
	}
	return afero.Exists(t.fs, t.MarkerPath())
}

// Run executes the unit unless it is already complete.
func (t *Task) Run(ctx context.Context) error {
	ctx, logger := ctxlog.With(ctx, "identifier", t.opts.Identifier)

	done, err := t.Complete(ctx)
	if err != nil {
		return fmt.Errorf("checking completion of %s: %w", t.opts.Identifier, err)
	}
	if done {
		logger.Debug("Work unit already complete, not invoking.")
		return nil
	}

	if err := t.ensureDir(ctx, filepath.Dir(t.opts.OutputDir)); err != nil {
		return err
	}

	argv := t.Command()
	if t.opts.LogPath != "" {
		if err := t.ensureDir(ctx, filepath.Dir(t.opts.LogPath)); err != nil {
			return err
		}
		if err := t.writeHeader(argv); err != nil {
			return err
		}
	}

	logger.Info("Invoking analysis.", "output_dir", t.opts.OutputDir)
	code, err := t.executor.Execute(ctx, Invocation{
		Identifier: t.opts.Identifier,
		Args:       argv,
		LogPath:    t.opts.LogPath,
	})
	if err != nil {
		return fmt.Errorf("running %s: %w", t.opts.Identifier, err)
	}
	if code != 0 {
		logger.Error("Analysis failed.", "exit_code", code)
		return &ProcessFailureError{Identifier: t.opts.Identifier, Code: code, Command: argv}
	}

	done, err = t.Complete(ctx)
	if err != nil {
		return fmt.Errorf("checking completion of %s: %w", t.opts.Identifier, err)
	}
	if !done {
		logger.Error("Analysis exited cleanly without writing its marker.", "marker", t.MarkerPath())
		return &IncompleteOutputError{Identifier: t.opts.Identifier, Marker: t.MarkerPath()}
	}

	logger.Info("Work unit complete.")
	return nil
}

// ensureDir creates dir. Another unit may create it at the same moment, so a
// failed create is only an error if dir still does not exist afterwards.
func (t *Task) ensureDir(ctx context.Context, dir string) error {
	if ok, _ := afero.DirExists(t.fs, dir); ok {
		return nil
	}
	err := t.fs.MkdirAll(dir, 0o755)
	if err == nil {
		return nil
	}
	if ok, _ := afero.DirExists(t.fs, dir); ok {
		ctxlog.FromContext(ctx).Warn("Concurrent creation of directory.", "path", dir, "error", err)
		return nil
	}
	return &DirectoryRaceError{Path: dir, Err: err}
}

// writeHeader truncates the log and records the command, synced to disk
// before the process starts.
func (t *Task) writeHeader(argv []string) error {
	f, err := t.fs.OpenFile(t.opts.LogPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log %s: %w", t.opts.LogPath, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "CMD: %s\n", shquot.POSIXShell(argv)); err != nil {
		return fmt.Errorf("writing log header %s: %w", t.opts.LogPath, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing log %s: %w", t.opts.LogPath, err)
	}
	return nil
}
