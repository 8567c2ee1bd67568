// Package batch expands an identifier list into work units and runs them
// through the dependency-graph executor.
//
// A batch has two phases. Plan reads the list and derives one descriptor per
// identifier without touching the output tree. Run turns the descriptors into
// work-unit tasks that share the same prerequisites and executes the graph.
// Completion comes from the filesystem, so running the same plan again only
// does the work that is still missing.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/specialistvlad/eppicbatch/internal/ctxlog"
	"github.com/specialistvlad/eppicbatch/internal/dag"
	"github.com/specialistvlad/eppicbatch/internal/task"
	"github.com/specialistvlad/eppicbatch/internal/workunit"
	"github.com/spf13/afero"
)

// ErrInputListMissing is returned by Plan when the identifier list does not
// exist yet. Nothing can be scheduled without it.
var ErrInputListMissing = errors.New("input list missing")

// Descriptor is one planned work unit. Err is set for identifiers that could
// not be turned into a unit; they are reported as failed without running.
type Descriptor struct {
	Identifier string
	OutputDir  string
	LogPath    string
	Err        error
}

// Plan is the result of phase one.
type Plan struct {
	ListPath    string
	Descriptors []Descriptor
}

// Driver runs batches.
type Driver struct {
	Fs       afero.Fs
	Root     string
	Executor workunit.Executor
	// Toolchain builds every unit's command line.
	Toolchain workunit.Toolchain
	// Requires are shared prerequisites of every unit.
	Requires []task.Task
	// Workers bounds concurrent units. Values below one mean one.
	Workers int
	// Logs controls whether each unit writes <id>.out in its output dir.
	Logs bool
}

// Plan reads listPath and builds one descriptor per identifier.
func (d *Driver) Plan(ctx context.Context, listPath string) (*Plan, error) {
	logger := ctxlog.FromContext(ctx)

	f, err := d.Fs.Open(listPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputListMissing, listPath)
		}
		return nil, fmt.Errorf("opening input list %s: %w", listPath, err)
	}
	defer f.Close()

	ids, err := ParseList(f)
	if err != nil {
		return nil, err
	}

	plan := &Plan{ListPath: listPath, Descriptors: make([]Descriptor, 0, len(ids))}
	for _, id := range ids {
		desc := Descriptor{Identifier: id}
		desc.OutputDir, desc.Err = workunit.OutputDir(d.Root, id)
		if desc.Err == nil && d.Logs {
			desc.LogPath = workunit.LogPath(desc.OutputDir, id)
		}
		plan.Descriptors = append(plan.Descriptors, desc)
	}
	logger.Info("Batch planned.", "list", listPath, "units", len(plan.Descriptors))
	return plan, nil
}

// Run executes the plan. Prerequisites are only scheduled through the units
// that need them, so an empty plan does nothing. The returned error is the
// report's aggregate error, non-nil whenever some unit is not complete.
func (d *Driver) Run(ctx context.Context, plan *Plan) (*Report, error) {
	logger := ctxlog.FromContext(ctx)

	g := dag.New()
	for _, desc := range plan.Descriptors {
		if desc.Err != nil {
			continue
		}
		unit := workunit.New(d.Fs, d.Executor, workunit.Options{
			Identifier: desc.Identifier,
			OutputDir:  desc.OutputDir,
			LogPath:    desc.LogPath,
			Toolchain:  d.Toolchain,
			Requires:   d.Requires,
		})
		added, err := g.Add(unit)
		if err != nil {
			return nil, err
		}
		if !added {
			logger.Debug("Duplicate identifier, sharing one work unit.", "identifier", desc.Identifier)
		}
	}

	results, _ := dag.NewExecutor(g, d.Workers).Run(ctx)

	report := newReport()
	units := make(map[string]dag.Result, len(results))
	for _, r := range results {
		if t, ok := r.Task.(*workunit.Task); ok {
			units[t.Identifier()] = r
			continue
		}
		report.addPrerequisite(r.ID, outcomeOf(r.State), r.Err)
	}
	for _, desc := range plan.Descriptors {
		if desc.Err != nil {
			report.add(desc.Identifier, Failed, desc.Err)
			continue
		}
		r := units[desc.Identifier]
		report.add(desc.Identifier, outcomeOf(r.State), r.Err)
	}
	if err := ctx.Err(); err != nil {
		report.cancelled = err
	}

	completed, already, failed, skipped := report.Counts()
	logger.Info("Batch finished.",
		"completed", completed,
		"already_complete", already,
		"failed", failed,
		"skipped", skipped,
	)
	return report, report.Err()
}

// Execute plans and runs the list at listPath.
func (d *Driver) Execute(ctx context.Context, listPath string) (*Report, error) {
	plan, err := d.Plan(ctx, listPath)
	if err != nil {
		return nil, err
	}
	return d.Run(ctx, plan)
}

func outcomeOf(s dag.State) Outcome {
	switch s {
	case dag.Done:
		return Completed
	case dag.AlreadyComplete:
		return AlreadyComplete
	case dag.Failed:
		return Failed
	default:
		return Skipped
	}
}
