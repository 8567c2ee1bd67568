// Package task defines the unit the dependency-graph executor schedules and
// the simplest implementation of it, a reference to a pre-existing file.
package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"
)

// Task is one node of the execution graph.
//
// Completion is always derived from the outside world (usually the
// filesystem). The executor asks Complete before every scheduling decision
// and never calls Run on a task that is already complete.
type Task interface {
	// ID uniquely identifies the task within a graph. Two tasks with the
	// same ID are the same unit of work.
	ID() string
	// Requires lists the tasks that must be complete before this one runs.
	Requires() []Task
	// Complete reports whether the task's outputs already exist.
	Complete(ctx context.Context) (bool, error)
	// Run produces the task's outputs.
	Run(ctx context.Context) error
}

// ErrMissingArtifact is returned when an external input does not exist.
var ErrMissingArtifact = errors.New("external artifact missing")

// Artifact is a file produced outside the pipeline, such as the analysis
// jar. It is complete when the file exists and cannot be run.
type Artifact struct {
	fs   afero.Fs
	path string
}

// NewArtifact returns a reference to the file at path.
func NewArtifact(fs afero.Fs, path string) *Artifact {
	return &Artifact{fs: fs, path: path}
}

// Path returns the referenced file path.
func (a *Artifact) Path() string {
	return a.path
}

func (a *Artifact) ID() string {
	return fmt.Sprintf("artifact[%s]", a.path)
}

func (a *Artifact) Requires() []Task {
	return nil
}

func (a *Artifact) Complete(_ context.Context) (bool, error) {
	return afero.Exists(a.fs, a.path)
}

func (a *Artifact) Run(_ context.Context) error {
	return fmt.Errorf("%w: %s", ErrMissingArtifact, a.path)
}
