package dag

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/specialistvlad/eppicbatch/internal/ctxlog"
)

// Executor runs every task of a graph with a bounded pool of workers.
// A graph is executed once; build a new graph to run again.
type Executor struct {
	graph      *Graph
	numWorkers int
	wg         sync.WaitGroup
}

// NewExecutor returns an executor for g. A worker count below one is
// treated as one.
func NewExecutor(g *Graph, numWorkers int) *Executor {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Executor{graph: g, numWorkers: numWorkers}
}

// Run executes the entire graph and returns one Result per task, in the
// order tasks were added. A failing task only affects the tasks that depend
// on it; independent tasks keep running. The returned error aggregates the
// failed tasks (skipped tasks are a symptom, not a cause, and are left out).
func (e *Executor) Run(ctx context.Context) ([]Result, error) {
	logger := ctxlog.FromContext(ctx)

	if err := e.graph.DetectCycles(); err != nil {
		return nil, err
	}

	e.graph.mutex.RLock()
	nodes := make([]*node, 0, len(e.graph.order))
	for _, id := range e.graph.order {
		nodes = append(nodes, e.graph.nodes[id])
	}
	e.graph.mutex.RUnlock()

	readyChan := make(chan *node, len(nodes))

	logger.Debug("Initializing executor, finding root nodes...")
	rootNodeCount := 0
	for _, n := range nodes {
		n.depCount.Store(int32(len(n.deps)))
		n.state.Store(int32(Pending))
	}
	for _, n := range nodes {
		if n.depCount.Load() == 0 {
			logger.Debug("Found root node.", "nodeID", n.id)
			readyChan <- n
			rootNodeCount++
		}
	}
	logger.Debug("Found all root nodes.", "count", rootNodeCount)

	e.wg.Add(len(nodes))

	logger.Debug("Starting worker pool.", "workers", e.numWorkers)
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(ctx, readyChan, i)
	}

	logger.Info("Waiting for all nodes to complete...", "nodes", len(nodes))
	e.wg.Wait()
	close(readyChan)
	logger.Info("All nodes reached a final state.")

	var merr *multierror.Error
	results := make([]Result, 0, len(nodes))
	for _, n := range nodes {
		state := State(n.state.Load())
		results = append(results, Result{ID: n.id, Task: n.task, State: state, Err: n.err})
		if state == Failed {
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", n.id, n.err))
		}
	}
	if ctx.Err() != nil {
		merr = multierror.Append(merr, ctx.Err())
	}

	return results, merr.ErrorOrNil()
}

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *node, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for n := range readyChan {
		workerLogger := logger.With("workerID", workerID, "nodeID", n.id)
		taskCtx := ctxlog.WithLogger(ctx, workerLogger)

		if err := ctx.Err(); err != nil {
			workerLogger.Warn("Context canceled, skipping node execution.")
			e.finish(n, Skipped, err)
			e.skipDependents(taskCtx, n)
			continue
		}

		n.state.Store(int32(Running))

		done, err := n.task.Complete(taskCtx)
		if err != nil {
			workerLogger.Error("Completion check failed.", "error", err)
			e.finish(n, Failed, fmt.Errorf("checking completion: %w", err))
			e.skipDependents(taskCtx, n)
			continue
		}

		if done {
			workerLogger.Debug("Node already complete, not running it.")
			e.finish(n, AlreadyComplete, nil)
			e.release(taskCtx, n, readyChan)
			continue
		}

		workerLogger.Debug("Worker picked up node for execution.")
		if err := n.task.Run(taskCtx); err != nil {
			workerLogger.Error("Node execution failed.", "error", err)
			e.finish(n, Failed, err)
			e.skipDependents(taskCtx, n)
			continue
		}

		workerLogger.Debug("Node execution succeeded.")
		e.finish(n, Done, nil)
		e.release(taskCtx, n, readyChan)
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// finish moves n into a terminal state exactly once and accounts for it in
// the wait group.
func (e *Executor) finish(n *node, state State, err error) {
	n.finishOnce.Do(func() {
		n.err = err
		n.state.Store(int32(state))
		e.wg.Done()
	})
}

// release unlocks the dependents of a completed node.
func (e *Executor) release(ctx context.Context, n *node, readyChan chan *node) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range n.dependents {
		if dependent.depCount.Add(-1) == 0 {
			logger.Debug("Unlocking dependent node.", "dependentID", dependent.id)
			readyChan <- dependent
		}
	}
}

// skipDependents recursively marks all downstream nodes as skipped.
func (e *Executor) skipDependents(ctx context.Context, n *node) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range n.dependents {
		if State(dependent.state.Load()) != Pending {
			continue
		}
		logger.Warn("Skipping dependent node due to upstream failure.", "dependentID", dependent.id, "dependency", n.id)
		e.finish(dependent, Skipped, fmt.Errorf("skipped due to upstream failure of '%s'", n.id))
		e.skipDependents(ctx, dependent)
	}
}
