package batch

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Outcome is the final state of one work unit in a run.
type Outcome int

const (
	Completed Outcome = iota
	AlreadyComplete
	Failed
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case AlreadyComplete:
		return "already-complete"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// UnitResult is the outcome of one identifier.
type UnitResult struct {
	Identifier string
	Outcome    Outcome
	Err        error
}

// PrerequisiteResult is the outcome of a shared prerequisite such as the
// config file.
type PrerequisiteResult struct {
	ID      string
	Outcome Outcome
	Err     error
}

// Report aggregates a batch run. Units appear once each, in list order.
type Report struct {
	Units         []UnitResult
	Prerequisites []PrerequisiteResult

	seen      map[string]bool
	cancelled error
}

func newReport() *Report {
	return &Report{seen: make(map[string]bool)}
}

func (r *Report) add(id string, o Outcome, err error) {
	if r.seen[id] {
		return
	}
	r.seen[id] = true
	r.Units = append(r.Units, UnitResult{Identifier: id, Outcome: o, Err: err})
}

func (r *Report) addPrerequisite(id string, o Outcome, err error) {
	r.Prerequisites = append(r.Prerequisites, PrerequisiteResult{ID: id, Outcome: o, Err: err})
}

// Complete reports whether every unit is done. An empty batch is complete.
func (r *Report) Complete() bool {
	for _, u := range r.Units {
		if u.Outcome != Completed && u.Outcome != AlreadyComplete {
			return false
		}
	}
	return r.cancelled == nil
}

// Counts returns the number of units per outcome.
func (r *Report) Counts() (completed, alreadyComplete, failed, skipped int) {
	for _, u := range r.Units {
		switch u.Outcome {
		case Completed:
			completed++
		case AlreadyComplete:
			alreadyComplete++
		case Failed:
			failed++
		case Skipped:
			skipped++
		}
	}
	return
}

// Err aggregates every failure. Skipped units are reported through the
// prerequisite or unit that caused them, not individually.
func (r *Report) Err() error {
	var merr *multierror.Error
	for _, p := range r.Prerequisites {
		if p.Outcome == Failed {
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", p.ID, p.Err))
		}
	}
	for _, u := range r.Units {
		if u.Outcome == Failed {
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", u.Identifier, u.Err))
		}
	}
	if r.cancelled != nil {
		merr = multierror.Append(merr, r.cancelled)
	}
	return merr.ErrorOrNil()
}
