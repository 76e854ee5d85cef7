package thought

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id, parent string) *Node {
	return &Node{ID: id, Content: "thought " + id, ParentID: parent}
}

func chainTree(t *testing.T, depth int, limits Limits) *Tree {
	t.Helper()
	tree := newTree("t1", "rain", 37, time.Unix(0, 0))
	require.NoError(t, tree.Insert([]*Node{node("n0", "")}, limits))
	for d := 1; d <= depth; d++ {
		require.NoError(t, tree.Insert([]*Node{node(fmt.Sprintf("n%d", d), fmt.Sprintf("n%d", d-1))}, limits))
	}
	return tree
}

func TestInsert_AssignsDepthAndLinks(t *testing.T) {
	limits := DefaultLimits()
	tree := newTree("t1", "rain", 37, time.Now())

	require.NoError(t, tree.Insert([]*Node{node("a", ""), node("b", "")}, limits))
	require.NoError(t, tree.Insert([]*Node{node("a1", "a"), node("a2", "a")}, limits))

	assert.Equal(t, 4, tree.Size())
	assert.Equal(t, 1, tree.Nodes["a1"].Depth)
	assert.Equal(t, []string{"a1", "a2"}, tree.Nodes["a"].Children)
	assert.Empty(t, tree.Nodes["b"].Children)
	require.NoError(t, tree.Validate())
}

func TestInsert_DepthLimitLeavesTreeUnchanged(t *testing.T) {
	limits := Limits{Depth: 3, Branch: 8, Expansion: 5}
	tree := chainTree(t, 3, limits)
	before := tree.Clone()

	err := tree.Insert([]*Node{node("too-deep", "n3")}, limits)

	require.ErrorIs(t, err, ErrDepthLimit)
	require.ErrorIs(t, err, ErrLimitExceeded)
	assert.Equal(t, before, tree)
	assert.NotContains(t, tree.Nodes, "too-deep")
}

func TestInsert_BranchLimitLeavesParentUnchanged(t *testing.T) {
	limits := Limits{Depth: 10, Branch: 3, Expansion: 5}
	tree := newTree("t1", "rain", 37, time.Now())
	require.NoError(t, tree.Insert([]*Node{node("p", "")}, limits))
	require.NoError(t, tree.Insert([]*Node{node("c1", "p"), node("c2", "p"), node("c3", "p")}, limits))

	err := tree.Insert([]*Node{node("c4", "p")}, limits)

	require.ErrorIs(t, err, ErrBranchLimit)
	assert.Len(t, tree.Nodes["p"].Children, 3)
	assert.Equal(t, 4, tree.Size())
}

func TestInsert_BatchIsAtomic(t *testing.T) {
	limits := Limits{Depth: 10, Branch: 2, Expansion: 5}
	tree := newTree("t1", "rain", 37, time.Now())
	require.NoError(t, tree.Insert([]*Node{node("p", "")}, limits))
	before := tree.Clone()

	err := tree.Insert([]*Node{node("c1", "p"), node("c2", "p"), node("c3", "p")}, limits)

	require.ErrorIs(t, err, ErrBranchLimit)
	assert.Equal(t, before, tree, "no node of a rejected batch may be committed")
}

func TestInsert_RootsRespectBranchLimit(t *testing.T) {
	limits := Limits{Depth: 10, Branch: 2, Expansion: 5}
	tree := newTree("t1", "rain", 37, time.Now())

	err := tree.Insert([]*Node{node("a", ""), node("b", ""), node("c", "")}, limits)

	require.ErrorIs(t, err, ErrBranchLimit)
	assert.Zero(t, tree.Size())
}

func TestInsert_MissingParentAndDuplicates(t *testing.T) {
	limits := DefaultLimits()
	tree := newTree("t1", "rain", 37, time.Now())
	require.NoError(t, tree.Insert([]*Node{node("a", "")}, limits))

	err := tree.Insert([]*Node{node("x", "ghost")}, limits)
	assert.ErrorIs(t, err, ErrNodeNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	err = tree.Insert([]*Node{node("a", "")}, limits)
	assert.ErrorIs(t, err, ErrInvalid)

	err = tree.Insert([]*Node{node("y", "a"), node("y", "a")}, limits)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, 1, tree.Size())
}

func TestTree_JSONRoundTrip(t *testing.T) {
	limits := DefaultLimits()
	tree := newTree("t1", "rain", 37, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, tree.Insert([]*Node{node("a", ""), node("b", "")}, limits))
	require.NoError(t, tree.Insert([]*Node{node("a1", "a"), node("a2", "a")}, limits))
	require.NoError(t, tree.Insert([]*Node{node("a1x", "a1")}, limits))

	data, err := json.Marshal(tree)
	require.NoError(t, err)
	var back Tree
	require.NoError(t, json.Unmarshal(data, &back))

	require.NoError(t, back.Validate())
	require.Len(t, back.Nodes, len(tree.Nodes))
	for id, n := range tree.Nodes {
		got := back.Nodes[id]
		require.NotNil(t, got, id)
		assert.Equal(t, n.ParentID, got.ParentID)
		assert.Equal(t, n.Children, got.Children)
		assert.Equal(t, n.Depth, got.Depth)
		assert.Equal(t, n.Content, got.Content)
	}
	assert.Equal(t, Format(tree, -1), Format(&back, -1))
}

func TestValidate_DetectsBrokenLinks(t *testing.T) {
	limits := DefaultLimits()
	tree := newTree("t1", "rain", 37, time.Now())
	require.NoError(t, tree.Insert([]*Node{node("a", "")}, limits))
	require.NoError(t, tree.Insert([]*Node{node("b", "a")}, limits))

	orphan := tree.Clone()
	orphan.Nodes["b"].ParentID = "ghost"
	assert.ErrorIs(t, orphan.Validate(), ErrInvalid)

	unlisted := tree.Clone()
	unlisted.Nodes["a"].Children = nil
	assert.ErrorIs(t, unlisted.Validate(), ErrInvalid)

	cycle := tree.Clone()
	cycle.Nodes["a"].ParentID = "b"
	cycle.Nodes["b"].Children = []string{"a"}
	assert.Error(t, cycle.Validate())
}

func TestFormat(t *testing.T) {
	limits := DefaultLimits()
	tree := newTree("t1", "rain", 37, time.Now())
	require.NoError(t, tree.Insert([]*Node{
		{ID: "a", Content: "clouds"},
		{ID: "b", Content: "umbrellas"},
	}, limits))
	require.NoError(t, tree.Insert([]*Node{{ID: "a1", Content: "grey skies", ParentID: "a"}}, limits))
	require.NoError(t, tree.Insert([]*Node{{ID: "a1x", Content: "grey moods", ParentID: "a1"}}, limits))

	want := "🌳 Thought Tree: rain (Age 37)\n" +
		"- clouds\n" +
		"  - grey skies\n" +
		"    - grey moods\n" +
		"- umbrellas\n"
	assert.Equal(t, want, Format(tree, -1))

	truncated := Format(tree, 1)
	assert.NotContains(t, truncated, "grey moods")
	assert.Contains(t, truncated, "  - grey skies")

	assert.Equal(t, Format(tree, 1), Format(tree, 1), "rendering is deterministic")
	assert.Equal(t, 5, strings.Count(Format(tree, -1), "\n"))
}

func TestFormatWithIDs(t *testing.T) {
	limits := DefaultLimits()
	tree := newTree("t1", "rain", 37, time.Now())
	require.NoError(t, tree.Insert([]*Node{{ID: "0123456789abcdef", Content: "clouds"}}, limits))
	require.NoError(t, tree.Insert([]*Node{{ID: "a1", Content: "grey skies", ParentID: "0123456789abcdef"}}, limits))

	want := "🌳 Thought Tree: rain (Age 37)\n" +
		"- `01234567` clouds\n" +
		"  - `a1` grey skies\n"
	assert.Equal(t, want, FormatWithIDs(tree, -1))
}

func TestTree_Lookup(t *testing.T) {
	tree := newTree("t1", "rain", 37, time.Now())
	require.NoError(t, tree.Insert([]*Node{node("abc1", ""), node("abc2", ""), node("xyz", "")}, DefaultLimits()))

	n, ok := tree.Lookup("abc1")
	require.True(t, ok)
	assert.Equal(t, "abc1", n.ID)

	n, ok = tree.Lookup("xy")
	require.True(t, ok)
	assert.Equal(t, "xyz", n.ID)

	_, ok = tree.Lookup("abc")
	assert.False(t, ok, "ambiguous prefix")
	_, ok = tree.Lookup("")
	assert.False(t, ok)
	_, ok = tree.Lookup("nope")
	assert.False(t, ok)
}

func TestSummary(t *testing.T) {
	tree := newTree("abc", "rain", 37, time.Now())
	require.NoError(t, tree.Insert([]*Node{node("a", ""), node("b", "")}, DefaultLimits()))

	assert.Equal(t, "Tree `abc` about rain with 2 thoughts", Summary(tree))
}

func TestErrorTaxonomy(t *testing.T) {
	assert.True(t, errors.Is(ErrTreeNotFound, ErrNotFound))
	assert.True(t, errors.Is(ErrNodeNotFound, ErrNotFound))
	assert.True(t, errors.Is(ErrDepthLimit, ErrLimitExceeded))
	assert.True(t, errors.Is(ErrBranchLimit, ErrLimitExceeded))
	assert.False(t, errors.Is(ErrBranchLimit, ErrNotFound))
}
