package dag

import (
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/eppicbatch/internal/task"
)

// Graph is a collection of tasks and their dependencies, representing a DAG.
// All operations on the graph are concurrency-safe.
type Graph struct {
	// mutex protects the nodes map during concurrent access.
	mutex sync.RWMutex
	// nodes stores all nodes in the graph, keyed by task ID.
	nodes map[string]*node
	// order records insertion order so results are reported stably.
	order []string
}

// node represents a single vertex in the graph. It is un-exported to
// enforce interaction with the graph via the public API (using string IDs),
// not by direct struct manipulation.
type node struct {
	// id is the task ID.
	id string
	// task is the unit of work the node schedules.
	task task.Task
	// deps holds the set of nodes that this node depends on (predecessors).
	deps map[string]*node
	// dependents holds the set of nodes that depend on this node (successors).
	dependents map[string]*node

	// depCount is the number of unmet dependencies during a run.
	depCount atomic.Int32
	// state is the node's current State during a run.
	state atomic.Int32
	// err is set once, by the goroutine that moves the node to a terminal state.
	err error
	// finishOnce guards the transition into a terminal state.
	finishOnce sync.Once
}

// State is the execution state of a node.
type State int32

const (
	// Pending means the node is waiting for its dependencies.
	Pending State = iota
	// Running means a worker is executing the task.
	Running
	// Done means the task ran and finished successfully.
	Done
	// AlreadyComplete means the task was complete before it was scheduled
	// and was not run.
	AlreadyComplete
	// Failed means the task ran, or checked its completion, and returned an error.
	Failed
	// Skipped means a dependency failed, or the run was cancelled, before
	// the task could be scheduled.
	Skipped
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case AlreadyComplete:
		return "already-complete"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Succeeded reports whether the state counts as complete.
func (s State) Succeeded() bool {
	return s == Done || s == AlreadyComplete
}

// Result is the final state of one task after a run.
type Result struct {
	ID    string
	Task  task.Task
	State State
	Err   error
}
