// Package dag is the execution layer of the application. It holds tasks in a
// Directed Acyclic Graph keyed by task ID and executes them concurrently with
// a fixed pool of workers, releasing a task only once every task it requires
// is complete.
//
// Completion is never remembered between runs: before a worker runs a task it
// asks the task whether it is already complete, so re-running a graph after a
// partial failure only does the outstanding work.
package dag
