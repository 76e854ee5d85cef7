// Package thought stores bounded forests of generated thoughts ("thought
// trees") and grows them through an external generator.
package thought

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrTreeNotFound = fmt.Errorf("thought tree %w", ErrNotFound)
	ErrNodeNotFound = fmt.Errorf("thought node %w", ErrNotFound)

	ErrLimitExceeded = errors.New("limit exceeded")
	ErrDepthLimit    = fmt.Errorf("depth %w", ErrLimitExceeded)
	ErrBranchLimit   = fmt.Errorf("branch %w", ErrLimitExceeded)

	ErrNoThoughts = errors.New("generator produced no thoughts")
	ErrInvalid    = errors.New("invalid thought tree")
)

const (
	defaultEmotion    = "neutral"
	defaultConfidence = 0.5
	defaultUrgency    = 0.5
)

// Limits bound the shape of every tree.
type Limits struct {
	// Depth is the greatest depth a node may have; roots are depth 0.
	Depth int
	// Branch is the most children a parent, or roots a tree, may have.
	Branch int
	// Expansion is the most nodes a single generation call may contribute.
	Expansion int
}

func DefaultLimits() Limits {
	return Limits{Depth: 10, Branch: 8, Expansion: 5}
}

type Metadata struct {
	Emotion       string  `json:"emotion"`
	Confidence    float64 `json:"confidence"`
	Urgency       float64 `json:"urgency"`
	AgeAtCreation int     `json:"age_at_creation"`
}

// Node is one thought. ParentID is a lookup key into the owning tree, never a pointer.
type Node struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Depth     int       `json:"depth"`
	ParentID  string    `json:"parent_id,omitempty"`
	Children  []string  `json:"children"`
	Metadata  Metadata  `json:"metadata"`
	Seq       int       `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

type Tree struct {
	ID            string           `json:"id"`
	Trigger       string           `json:"trigger"`
	AgeAtCreation int              `json:"age_at_creation"`
	Nodes         map[string]*Node `json:"nodes"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"last_updated"`
}

func newTree(id, trigger string, age int, now time.Time) *Tree {
	return &Tree{
		ID:            id,
		Trigger:       trigger,
		AgeAtCreation: age,
		Nodes:         make(map[string]*Node),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Size is the number of nodes in the tree.
// ShortIDLen is how much of a node id replies show.
const ShortIDLen = 8

func ShortID(id string) string {
	if len(id) <= ShortIDLen {
		return id
	}
	return id[:ShortIDLen]
}

// Lookup finds a node by its id, or by a prefix shared with no other node.
func (t *Tree) Lookup(ref string) (*Node, bool) {
	if n, ok := t.Nodes[ref]; ok {
		return n, true
	}
	if ref == "" {
		return nil, false
	}
	var found *Node
	for id, n := range t.Nodes {
		if !strings.HasPrefix(id, ref) {
			continue
		}
		if found != nil {
			return nil, false
		}
		found = n
	}
	return found, found != nil
}

func (t *Tree) Size() int {
	return len(t.Nodes)
}

// Roots returns the depth-0 nodes in insertion order.
func (t *Tree) Roots() []*Node {
	var roots []*Node
	for _, n := range t.Nodes {
		if n.ParentID == "" {
			roots = append(roots, n)
		}
	}
	sort.Slice(roots, func(i, j int) bool {
		if roots[i].Seq != roots[j].Seq {
			return roots[i].Seq < roots[j].Seq
		}
		return roots[i].ID < roots[j].ID
	})
	return roots
}

// Insert adds nodes to the tree as a single batch. Each node names its parent
// through ParentID (empty for a root); depth, sequence and child links are
// assigned here. If any node would break a limit or reference a missing
// parent, nothing is inserted.
func (t *Tree) Insert(batch []*Node, limits Limits) error {
	pendingChildren := make(map[string]int)
	pendingRoots := 0
	seen := make(map[string]bool, len(batch))
	roots := len(t.Roots())

	for _, n := range batch {
		if n.ID == "" {
			return fmt.Errorf("%w: node without id", ErrInvalid)
		}
		if _, dup := t.Nodes[n.ID]; dup || seen[n.ID] {
			return fmt.Errorf("%w: duplicate node id %s", ErrInvalid, n.ID)
		}
		seen[n.ID] = true

		if n.ParentID == "" {
			if roots+pendingRoots >= limits.Branch {
				return fmt.Errorf("%w: tree already has %d roots", ErrBranchLimit, roots+pendingRoots)
			}
			pendingRoots++
			continue
		}

		parent, ok := t.Nodes[n.ParentID]
		if !ok {
			return fmt.Errorf("%w: parent %s", ErrNodeNotFound, n.ParentID)
		}
		if parent.Depth+1 > limits.Depth {
			return fmt.Errorf("%w: depth %d exceeds %d", ErrDepthLimit, parent.Depth+1, limits.Depth)
		}
		if len(parent.Children)+pendingChildren[parent.ID] >= limits.Branch {
			return fmt.Errorf("%w: node %s already has %d children", ErrBranchLimit,
				parent.ID, len(parent.Children)+pendingChildren[parent.ID])
		}
		pendingChildren[parent.ID]++
	}

	seq := t.nextSeq()
	for _, n := range batch {
		n.Depth = 0
		if n.ParentID != "" {
			parent := t.Nodes[n.ParentID]
			n.Depth = parent.Depth + 1
			parent.Children = append(parent.Children, n.ID)
		}
		if n.Children == nil {
			n.Children = []string{}
		}
		n.Seq = seq
		seq++
		t.Nodes[n.ID] = n
	}
	return nil
}

func (t *Tree) nextSeq() int {
	next := 0
	for _, n := range t.Nodes {
		if n.Seq >= next {
			next = n.Seq + 1
		}
	}
	return next
}

// Validate checks the forest invariants: parents exist, parent and child
// links agree, depths are consistent and every node is reachable from a root.
func (t *Tree) Validate() error {
	for id, n := range t.Nodes {
		if n.ID != id {
			return fmt.Errorf("%w: key %s holds node %s", ErrInvalid, id, n.ID)
		}
		if n.ParentID == "" {
			if n.Depth != 0 {
				return fmt.Errorf("%w: root %s at depth %d", ErrInvalid, id, n.Depth)
			}
			continue
		}
		parent, ok := t.Nodes[n.ParentID]
		if !ok {
			return fmt.Errorf("%w: node %s has missing parent %s", ErrInvalid, id, n.ParentID)
		}
		if n.Depth != parent.Depth+1 {
			return fmt.Errorf("%w: node %s depth %d under parent depth %d", ErrInvalid, id, n.Depth, parent.Depth)
		}
		if !contains(parent.Children, id) {
			return fmt.Errorf("%w: parent %s does not list child %s", ErrInvalid, parent.ID, id)
		}
	}

	visited := make(map[string]bool, len(t.Nodes))
	var walk func(id string) error
	walk = func(id string) error {
		if visited[id] {
			return fmt.Errorf("%w: node %s reached twice", ErrInvalid, id)
		}
		visited[id] = true
		n, ok := t.Nodes[id]
		if !ok {
			return fmt.Errorf("%w: dangling child %s", ErrInvalid, id)
		}
		for _, c := range n.Children {
			child, ok := t.Nodes[c]
			if !ok || child.ParentID != id {
				return fmt.Errorf("%w: child %s of %s does not point back", ErrInvalid, c, id)
			}
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range t.Roots() {
		if err := walk(r.ID); err != nil {
			return err
		}
	}
	if len(visited) != len(t.Nodes) {
		return fmt.Errorf("%w: %d of %d nodes unreachable", ErrInvalid, len(t.Nodes)-len(visited), len(t.Nodes))
	}
	return nil
}

// Clone returns a deep copy.
func (t *Tree) Clone() *Tree {
	c := *t
	c.Nodes = make(map[string]*Node, len(t.Nodes))
	for id, n := range t.Nodes {
		nc := *n
		nc.Children = append([]string{}, n.Children...)
		c.Nodes[id] = &nc
	}
	return &c
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
