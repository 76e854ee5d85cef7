package thought

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedGenerator answers every request with n numbered thoughts.
type scriptedGenerator struct {
	mu      sync.Mutex
	n       int
	fail    bool
	raw     string
	calls   int
	prompts []string
}

func (g *scriptedGenerator) GenerateStructured(_ context.Context, prompt string, _ string, v any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.prompts = append(g.prompts, prompt)
	if g.fail {
		return errors.New("backend down")
	}
	payload := g.raw
	if payload == "" {
		items := make([]map[string]any, 0, g.n)
		for i := 0; i < g.n; i++ {
			items = append(items, map[string]any{
				"content":    fmt.Sprintf("idea %d.%d", g.calls, i),
				"emotion":    "Curious",
				"urgency":    1.7,
				"confidence": 0.9,
			})
		}
		data, _ := json.Marshal(items)
		payload = string(data)
	}
	return json.Unmarshal([]byte(payload), v)
}

type memoryStore struct {
	mu    sync.Mutex
	trees map[string]*Tree
	saves int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{trees: make(map[string]*Tree)}
}

func (s *memoryStore) LoadTrees() (map[string]*Tree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*Tree, len(s.trees))
	for id, t := range s.trees {
		out[id] = t.Clone()
	}
	return out, nil
}

func (s *memoryStore) SaveTree(t *Tree) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.trees[t.ID] = t.Clone()
	return nil
}

func newTestEngine(t *testing.T, gen Generator, limits Limits) (*Engine, *memoryStore) {
	t.Helper()
	store := newMemoryStore()
	e, err := NewEngine(gen, store, limits, func() Mind { return Mind{Age: 42} })
	require.NoError(t, err)
	return e, store
}

func TestEngine_CreateBuildsRoots(t *testing.T) {
	gen := &scriptedGenerator{n: 3}
	e, store := newTestEngine(t, gen, DefaultLimits())

	tree, err := e.Create(t.Context(), "  the smell of rain ")
	require.NoError(t, err)

	assert.Equal(t, "the smell of rain", tree.Trigger)
	assert.Equal(t, 42, tree.AgeAtCreation)
	require.Len(t, tree.Roots(), 3)
	for _, r := range tree.Roots() {
		assert.Equal(t, 0, r.Depth)
		assert.Equal(t, "curious", r.Metadata.Emotion)
		assert.Equal(t, 1.0, r.Metadata.Urgency, "urgency is clamped to [0,1]")
		assert.Equal(t, 0.9, r.Metadata.Confidence)
		assert.Equal(t, 42, r.Metadata.AgeAtCreation)
	}
	assert.Contains(t, store.trees, tree.ID)
}

func TestEngine_CreateCapsBatchAtExpansionLimit(t *testing.T) {
	gen := &scriptedGenerator{n: 12}
	e, _ := newTestEngine(t, gen, Limits{Depth: 10, Branch: 8, Expansion: 5})

	tree, err := e.Create(t.Context(), "rain")
	require.NoError(t, err)
	assert.Equal(t, 5, tree.Size())
}

func TestEngine_CreateWithNoThoughtsPersistsNothing(t *testing.T) {
	for name, gen := range map[string]*scriptedGenerator{
		"failure":   {fail: true},
		"malformed": {raw: `"not a list"`},
		"empty":     {raw: `[{"content": "   "}]`},
	} {
		t.Run(name, func(t *testing.T) {
			e, store := newTestEngine(t, gen, DefaultLimits())

			_, err := e.Create(t.Context(), "rain")

			require.ErrorIs(t, err, ErrNoThoughts)
			assert.Zero(t, store.saves)
			assert.Empty(t, e.Recent(10))
		})
	}
}

func TestEngine_DefaultsMissingMetadata(t *testing.T) {
	gen := &scriptedGenerator{raw: `{"thoughts": [{"content": "bare"}]}`}
	e, _ := newTestEngine(t, gen, DefaultLimits())

	tree, err := e.Create(t.Context(), "rain")
	require.NoError(t, err)

	root := tree.Roots()[0]
	assert.Equal(t, "neutral", root.Metadata.Emotion)
	assert.Equal(t, 0.5, root.Metadata.Confidence)
	assert.Equal(t, 0.5, root.Metadata.Urgency)
}

func TestEngine_IDsNeverReused(t *testing.T) {
	gen := &scriptedGenerator{n: 4}
	e, _ := newTestEngine(t, gen, DefaultLimits())

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		tree, err := e.Create(t.Context(), fmt.Sprintf("trigger %d", i))
		require.NoError(t, err)
		require.False(t, seen[tree.ID], "tree id reused")
		seen[tree.ID] = true
		for id := range tree.Nodes {
			require.False(t, seen[id], "node id reused")
			seen[id] = true
		}
	}
}

func TestEngine_ExpandAddsChildren(t *testing.T) {
	gen := &scriptedGenerator{n: 2}
	e, store := newTestEngine(t, gen, DefaultLimits())
	tree, err := e.Create(t.Context(), "rain")
	require.NoError(t, err)
	root := tree.Roots()[0]

	nodes, err := e.Expand(t.Context(), tree.ID, root.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	for _, n := range nodes {
		assert.Equal(t, 1, n.Depth)
		assert.Equal(t, root.ID, n.ParentID)
	}

	updated, err := e.Get(tree.ID)
	require.NoError(t, err)
	assert.Len(t, updated.Nodes[root.ID].Children, 2)
	assert.Equal(t, 4, store.trees[tree.ID].Size())
	require.NoError(t, updated.Validate())
}

func TestEngine_ExpandNotFound(t *testing.T) {
	gen := &scriptedGenerator{n: 1}
	e, _ := newTestEngine(t, gen, DefaultLimits())
	tree, err := e.Create(t.Context(), "rain")
	require.NoError(t, err)

	_, err = e.Expand(t.Context(), "missing", "x")
	assert.ErrorIs(t, err, ErrTreeNotFound)

	_, err = e.Expand(t.Context(), tree.ID, "missing")
	assert.ErrorIs(t, err, ErrNodeNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_ExpandFillsRemainingRoom(t *testing.T) {
	gen := &scriptedGenerator{n: 5}
	e, _ := newTestEngine(t, gen, Limits{Depth: 10, Branch: 8, Expansion: 5})
	tree, err := e.Create(t.Context(), "rain")
	require.NoError(t, err)
	root := tree.Roots()[0]

	first, err := e.Expand(t.Context(), tree.ID, root.ID)
	require.NoError(t, err)
	assert.Len(t, first, 5)

	second, err := e.Expand(t.Context(), tree.ID, root.ID)
	require.NoError(t, err)
	assert.Len(t, second, 3, "only the room left under the branch limit is used")
	assert.Contains(t, gen.prompts[len(gen.prompts)-1], "up to 3 deeper thoughts")

	after, err := e.Get(tree.ID)
	require.NoError(t, err)
	assert.Len(t, after.Nodes[root.ID].Children, 8)
	require.NoError(t, after.Validate())

	calls := gen.calls
	_, err = e.Expand(t.Context(), tree.ID, root.ID)
	require.ErrorIs(t, err, ErrBranchLimit)
	assert.Equal(t, calls, gen.calls, "a full node is rejected before generating")
}

func TestEngine_ExpandByShortID(t *testing.T) {
	gen := &scriptedGenerator{n: 2}
	e, _ := newTestEngine(t, gen, DefaultLimits())
	tree, err := e.Create(t.Context(), "rain")
	require.NoError(t, err)
	root := tree.Roots()[0]

	nodes, err := e.Expand(t.Context(), tree.ID, ShortID(root.ID))
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, root.ID, nodes[0].ParentID)
}

func TestEngine_PromptsCarryMind(t *testing.T) {
	gen := &scriptedGenerator{n: 1}
	mind := Mind{
		Age:       55,
		Statement: "Connor is patient.",
		Behavior:  "Reflective and wise.",
		Beliefs:   `{"Purpose": "To listen."}`,
		Knowledge: "Self: I like rain.",
	}
	e, err := NewEngine(gen, newMemoryStore(), DefaultLimits(), func() Mind { return mind })
	require.NoError(t, err)

	tree, err := e.Create(t.Context(), "rain")
	require.NoError(t, err)
	_, err = e.Expand(t.Context(), tree.ID, tree.Roots()[0].ID)
	require.NoError(t, err)

	require.Len(t, gen.prompts, 2)
	for _, p := range gen.prompts {
		assert.Contains(t, p, "Agent Statement: Connor is patient.")
		assert.Contains(t, p, "Age Behavior: Reflective and wise.")
		assert.Contains(t, p, `Beliefs: {"Purpose": "To listen."}`)
		assert.Contains(t, p, "Past Learnings:\nSelf: I like rain.")
		assert.Contains(t, p, "55 years old")
	}
	assert.Contains(t, gen.prompts[1], "Trigger Thought: idea 1.0")
	assert.Equal(t, 55, tree.AgeAtCreation)
}

func TestEngine_ExpandAtDepthLimitSkipsGeneration(t *testing.T) {
	gen := &scriptedGenerator{n: 1}
	e, _ := newTestEngine(t, gen, Limits{Depth: 1, Branch: 8, Expansion: 5})
	tree, err := e.Create(t.Context(), "rain")
	require.NoError(t, err)
	children, err := e.Expand(t.Context(), tree.ID, tree.Roots()[0].ID)
	require.NoError(t, err)
	calls := gen.calls

	_, err = e.Expand(t.Context(), tree.ID, children[0].ID)

	require.ErrorIs(t, err, ErrDepthLimit)
	assert.Equal(t, calls, gen.calls)
}

func TestEngine_ConcurrentExpansionsRespectBranchLimit(t *testing.T) {
	gen := &scriptedGenerator{n: 1}
	e, _ := newTestEngine(t, gen, Limits{Depth: 10, Branch: 3, Expansion: 1})
	tree, err := e.Create(t.Context(), "rain")
	require.NoError(t, err)
	root := tree.Roots()[0]

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Expand(context.Background(), tree.ID, root.ID); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	after, err := e.Get(tree.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, succeeded)
	assert.Len(t, after.Nodes[root.ID].Children, 3)
}

func TestEngine_RecentOrdersByLastUpdate(t *testing.T) {
	gen := &scriptedGenerator{n: 1}
	e, _ := newTestEngine(t, gen, DefaultLimits())
	clock := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	e.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	first, err := e.Create(t.Context(), "first")
	require.NoError(t, err)
	second, err := e.Create(t.Context(), "second")
	require.NoError(t, err)

	recent := e.Recent(5)
	require.Len(t, recent, 2)
	assert.Equal(t, second.ID, recent[0].ID)

	_, err = e.Expand(t.Context(), first.ID, first.Roots()[0].ID)
	require.NoError(t, err)

	recent = e.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, first.ID, recent[0].ID)
}

func TestEngine_Brainstorm(t *testing.T) {
	gen := &scriptedGenerator{n: 4}
	e, _ := newTestEngine(t, gen, DefaultLimits())

	tree, err := e.Brainstorm(t.Context(), "rain", 3)
	require.NoError(t, err)

	roots := tree.Roots()
	require.Len(t, roots, 4)
	for i, r := range roots {
		if i < 3 {
			assert.Len(t, r.Children, 4)
		} else {
			assert.Empty(t, r.Children)
		}
	}
	assert.Equal(t, 16, tree.Size())
}

func TestNewEngine_SkipsInvalidPersistedTrees(t *testing.T) {
	store := newMemoryStore()
	good := newTree("good", "rain", 30, time.Now())
	require.NoError(t, good.Insert([]*Node{node("a", "")}, DefaultLimits()))
	bad := newTree("bad", "rain", 30, time.Now())
	bad.Nodes["x"] = &Node{ID: "x", ParentID: "ghost", Depth: 1}
	store.trees["good"] = good
	store.trees["bad"] = bad

	e, err := NewEngine(&scriptedGenerator{}, store, DefaultLimits(), nil)
	require.NoError(t, err)

	_, err = e.Get("good")
	assert.NoError(t, err)
	_, err = e.Get("bad")
	assert.ErrorIs(t, err, ErrTreeNotFound)
}
