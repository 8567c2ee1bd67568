package dag

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/specialistvlad/eppicbatch/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTask is an in-memory task whose completion flips when it runs.
type fakeTask struct {
	id       string
	requires []task.Task
	runErr   error
	complete atomic.Bool
	runs     atomic.Int32
	onRun    func()
}

func newFake(id string, requires ...task.Task) *fakeTask {
	return &fakeTask{id: id, requires: requires}
}

func (f *fakeTask) ID() string            { return f.id }
func (f *fakeTask) Requires() []task.Task { return f.requires }
func (f *fakeTask) Complete(context.Context) (bool, error) {
	return f.complete.Load(), nil
}

func (f *fakeTask) Run(context.Context) error {
	f.runs.Add(1)
	if f.onRun != nil {
		f.onRun()
	}
	if f.runErr != nil {
		return f.runErr
	}
	f.complete.Store(true)
	return nil
}

func TestNew(t *testing.T) {
	g := New()
	require.NotNil(t, g)
	assert.NotNil(t, g.nodes)
	assert.Empty(t, g.nodes)
}

func TestAddNode(t *testing.T) {
	g := New()

	assert.True(t, g.AddNode(newFake("a")))
	assert.Len(t, g.nodes, 1)
	nodeA, ok := g.nodes["a"]
	require.True(t, ok)
	assert.Equal(t, "a", nodeA.id)
	assert.NotNil(t, nodeA.deps)
	assert.NotNil(t, nodeA.dependents)

	assert.False(t, g.AddNode(newFake("a")), "same ID is the same unit of work")
	assert.Len(t, g.nodes, 1)

	g.AddNode(newFake("b"))
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, []string{"a", "b"}, g.order)
}

func TestAddFollowsRequirements(t *testing.T) {
	conf := newFake("conf")
	jar := newFake("jar")
	unit := newFake("unit", conf, jar)
	other := newFake("other", conf, jar)

	g := New()
	added, err := g.Add(unit)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = g.Add(other)
	require.NoError(t, err)
	assert.True(t, added)

	assert.Equal(t, 4, g.Len())
	deps, err := g.Dependencies("unit")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"conf", "jar"}, deps)

	dependents, err := g.Dependents("conf")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"unit", "other"}, dependents)

	added, err = g.Add(newFake("unit", conf))
	require.NoError(t, err)
	assert.False(t, added)
}

func TestAddEdge(t *testing.T) {
	t.Run("success case", func(t *testing.T) {
		g := New()
		g.AddNode(newFake("a"))
		g.AddNode(newFake("b"))

		err := g.AddEdge("a", "b") // b depends on a
		require.NoError(t, err)

		nodeA := g.nodes["a"]
		nodeB := g.nodes["b"]

		assert.Contains(t, nodeA.dependents, "b")
		assert.Equal(t, nodeB, nodeA.dependents["b"])
		assert.Contains(t, nodeB.deps, "a")
		assert.Equal(t, nodeA, nodeB.deps["a"])
	})

	t.Run("error cases", func(t *testing.T) {
		g := New()
		g.AddNode(newFake("a"))
		g.AddNode(newFake("b"))

		err := g.AddEdge("dne", "a")
		assert.ErrorContains(t, err, "source node not found")

		err = g.AddEdge("a", "dne")
		assert.ErrorContains(t, err, "destination node not found")

		err = g.AddEdge("a", "a")
		assert.ErrorContains(t, err, "self-referential edge")

		_, err = g.Dependencies("dne")
		assert.ErrorContains(t, err, "node not found")
		_, err = g.Dependents("dne")
		assert.ErrorContains(t, err, "node not found")
	})
}

func TestDetectCycles(t *testing.T) {
	build := func(ids []string, edges [][2]string) *Graph {
		g := New()
		for _, id := range ids {
			g.AddNode(newFake(id))
		}
		for _, e := range edges {
			require.NoError(t, g.AddEdge(e[0], e[1]))
		}
		return g
	}

	t.Run("empty graph has no cycles", func(t *testing.T) {
		assert.NoError(t, New().DetectCycles())
	})

	t.Run("valid dag has no cycles", func(t *testing.T) {
		g := build([]string{"a", "b", "c", "d"}, [][2]string{{"a", "b"}, {"b", "c"}, {"a", "c"}, {"c", "d"}})
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("longer cycle is detected", func(t *testing.T) {
		g := build([]string{"a", "b", "c", "d"}, [][2]string{{"a", "b"}, {"b", "c"}, {"c", "d"}, {"d", "a"}})
		assert.ErrorContains(t, g.DetectCycles(), "cycle detected")
	})

	t.Run("cycle in a disjoint component is detected", func(t *testing.T) {
		g := build([]string{"a", "b", "x", "y", "z"}, [][2]string{{"a", "b"}, {"x", "y"}, {"y", "z"}, {"z", "y"}})
		assert.ErrorContains(t, g.DetectCycles(), "cycle detected")
	})
}

func resultsByID(results []Result) map[string]Result {
	byID := make(map[string]Result, len(results))
	for _, r := range results {
		byID[r.ID] = r
	}
	return byID
}

func TestExecutorRunsDependenciesFirst(t *testing.T) {
	conf := newFake("conf")
	var early atomic.Int32
	units := make([]*fakeTask, 0, 5)
	g := New()
	for _, id := range []string{"u1", "u2", "u3", "u4", "u5"} {
		u := newFake(id, conf)
		u.onRun = func() {
			if !conf.complete.Load() {
				early.Add(1)
			}
		}
		units = append(units, u)
		_, err := g.Add(u)
		require.NoError(t, err)
	}

	results, err := NewExecutor(g, 4).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 6)

	assert.Zero(t, early.Load(), "no unit may start before its requirement completes")
	for _, r := range results {
		assert.Equal(t, Done, r.State, r.ID)
		assert.NoError(t, r.Err)
	}
	assert.EqualValues(t, 1, conf.runs.Load())
	for _, u := range units {
		assert.EqualValues(t, 1, u.runs.Load())
	}
}

func TestExecutorSkipsCompleteTasks(t *testing.T) {
	conf := newFake("conf")
	conf.complete.Store(true)
	unit := newFake("unit", conf)
	unit.complete.Store(true)

	g := New()
	_, err := g.Add(unit)
	require.NoError(t, err)

	results, err := NewExecutor(g, 2).Run(context.Background())
	require.NoError(t, err)

	byID := resultsByID(results)
	assert.Equal(t, AlreadyComplete, byID["conf"].State)
	assert.Equal(t, AlreadyComplete, byID["unit"].State)
	assert.Zero(t, conf.runs.Load())
	assert.Zero(t, unit.runs.Load())
}

func TestExecutorIsolatesFailures(t *testing.T) {
	boom := errors.New("boom")
	conf := newFake("conf")
	bad := newFake("bad", conf)
	bad.runErr = boom
	good := newFake("good", conf)
	downstream := newFake("downstream", bad)

	g := New()
	for _, tk := range []task.Task{bad, good, downstream} {
		_, err := g.Add(tk)
		require.NoError(t, err)
	}

	results, err := NewExecutor(g, 3).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "bad")

	byID := resultsByID(results)
	assert.Equal(t, Done, byID["conf"].State)
	assert.Equal(t, Failed, byID["bad"].State)
	assert.Equal(t, Done, byID["good"].State, "siblings keep running")
	assert.Equal(t, Skipped, byID["downstream"].State)
	assert.ErrorContains(t, byID["downstream"].Err, "skipped due to upstream failure of 'bad'")
	assert.Zero(t, downstream.runs.Load())
}

func TestExecutorFailedPrerequisiteSkipsEverything(t *testing.T) {
	jar := newFake("jar")
	jar.runErr = task.ErrMissingArtifact
	g := New()
	for _, id := range []string{"u1", "u2"} {
		_, err := g.Add(newFake(id, jar))
		require.NoError(t, err)
	}

	results, err := NewExecutor(g, 2).Run(context.Background())
	assert.ErrorIs(t, err, task.ErrMissingArtifact)

	byID := resultsByID(results)
	assert.Equal(t, Skipped, byID["u1"].State)
	assert.Equal(t, Skipped, byID["u2"].State)
}

func TestExecutorCancelledContext(t *testing.T) {
	g := New()
	_, err := g.Add(newFake("b", newFake("a")))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := NewExecutor(g, 1).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	for _, r := range results {
		assert.Equal(t, Skipped, r.State, r.ID)
	}
}

func TestExecutorEmptyGraph(t *testing.T) {
	results, err := NewExecutor(New(), 0).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestExecutorRejectsCycles(t *testing.T) {
	g := New()
	g.AddNode(newFake("a"))
	g.AddNode(newFake("b"))
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "a"))

	_, err := NewExecutor(g, 1).Run(context.Background())
	assert.ErrorContains(t, err, "cycle detected")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "already-complete", AlreadyComplete.String())
	assert.True(t, Done.Succeeded())
	assert.True(t, AlreadyComplete.Succeeded())
	assert.False(t, Skipped.Succeeded())
}
