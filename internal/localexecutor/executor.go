// Package localexecutor runs analysis invocations as local OS processes.
package localexecutor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/specialistvlad/eppicbatch/internal/ctxlog"
	"github.com/specialistvlad/eppicbatch/internal/workunit"
	"github.com/spf13/afero"
)

// Executor implements workunit.Executor with os/exec.
type Executor struct {
	fs afero.Fs

	// Stdout and Stderr receive process output when an invocation has no
	// log path.
	Stdout io.Writer
	Stderr io.Writer
}

// New creates a new local executor. Log files are opened through fs.
func New(fs afero.Fs) *Executor {
	return &Executor{fs: fs, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Execute runs the invocation and waits for it. The process is not tied to
// ctx: once started it runs to completion. A process killed by a signal
// reports -1.
func (e *Executor) Execute(ctx context.Context, inv workunit.Invocation) (int, error) {
	logger := ctxlog.FromContext(ctx)

	if len(inv.Args) == 0 {
		return -1, fmt.Errorf("empty command for %s", inv.Identifier)
	}

	cmd := exec.Command(inv.Args[0], inv.Args[1:]...)
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr

	if inv.LogPath != "" {
		f, err := e.fs.OpenFile(inv.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return -1, fmt.Errorf("opening log %s: %w", inv.LogPath, err)
		}
		defer f.Close()
		cmd.Stdout = f
		cmd.Stderr = f
	}

	logger.Debug("Starting local process.", "program", inv.Args[0], "log", inv.LogPath)
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		logger.Debug("Local process exited.", "exit_code", exitErr.ExitCode())
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("starting %s: %w", inv.Args[0], err)
}
