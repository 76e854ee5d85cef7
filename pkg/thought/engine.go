package thought

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sipeed/connor/pkg/logger"
)

// Generator is the structured half of the language-model boundary. A
// failed or malformed generation returns an error and leaves v untouched.
type Generator interface {
	GenerateStructured(ctx context.Context, prompt, system string, v any) error
}

// Store persists trees keyed by id.
type Store interface {
	LoadTrees() (map[string]*Tree, error)
	SaveTree(t *Tree) error
}

const thoughtSystemPrompt = "You are Connor's mind expanding complex thought branches. You answer only with JSON."

// Mind is the thinker's outlook at the moment a thought is generated.
type Mind struct {
	Age       int
	Statement string
	Behavior  string
	Beliefs   string
	Knowledge string
}

func (m Mind) preamble() string {
	var b strings.Builder
	if m.Statement != "" {
		fmt.Fprintf(&b, "Agent Statement: %s\n", m.Statement)
	}
	if m.Behavior != "" {
		fmt.Fprintf(&b, "Age Behavior: %s\n", m.Behavior)
	}
	if m.Beliefs != "" {
		fmt.Fprintf(&b, "Beliefs: %s\n", m.Beliefs)
	}
	if m.Knowledge != "" {
		fmt.Fprintf(&b, "Past Learnings:\n%s\n", m.Knowledge)
	}
	return b.String()
}

// Engine creates and grows thought trees. Expansion holds a per-tree lock
// for its whole duration, so two expansions of one tree never interleave.
type Engine struct {
	gen    Generator
	store  Store
	limits Limits
	mind   func() Mind
	now    func() time.Time

	mu    sync.RWMutex
	trees map[string]*Tree
	locks sync.Map // map[string]*sync.Mutex, one per tree
}

// NewEngine loads every persisted tree. Trees that fail validation are
// skipped with a warning rather than failing startup. mind is consulted
// for every generation; nil means an anonymous thinker of age 0.
func NewEngine(gen Generator, store Store, limits Limits, mind func() Mind) (*Engine, error) {
	loaded, err := store.LoadTrees()
	if err != nil {
		return nil, fmt.Errorf("thought: load trees: %w", err)
	}

	trees := make(map[string]*Tree, len(loaded))
	for id, t := range loaded {
		if err := t.Validate(); err != nil {
			logger.WarnCF("thought", "Skipping invalid tree", map[string]any{"tree_id": id, "error": err.Error()})
			continue
		}
		trees[id] = t
	}
	if mind == nil {
		mind = func() Mind { return Mind{} }
	}

	return &Engine{
		gen:    gen,
		store:  store,
		limits: limits,
		mind:   mind,
		now:    time.Now,
		trees:  trees,
	}, nil
}

func (e *Engine) Limits() Limits {
	return e.limits
}

func (e *Engine) treeLock(id string) *sync.Mutex {
	v, _ := e.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Create generates a new tree of root thoughts for trigger.
func (e *Engine) Create(ctx context.Context, trigger string) (*Tree, error) {
	trigger = strings.TrimSpace(trigger)
	if trigger == "" {
		return nil, fmt.Errorf("thought: empty trigger")
	}
	m := e.mind()
	age := m.Age

	batch := min(e.limits.Expansion, e.limits.Branch)
	prompt := m.preamble() + fmt.Sprintf(
		"You are Connor, %d years old. Something just made you think: %q.\n"+
			"List up to %d distinct first thoughts it provokes.\n%s",
		age, trigger, batch, draftSchema)
	drafts := e.generate(ctx, prompt, batch)
	if len(drafts) == 0 {
		return nil, ErrNoThoughts
	}

	now := e.now()
	tree := newTree(uuid.NewString(), trigger, age, now)
	if err := tree.Insert(e.toNodes(drafts, "", age, now), e.limits); err != nil {
		return nil, err
	}
	if err := e.store.SaveTree(tree); err != nil {
		return nil, fmt.Errorf("thought: save tree: %w", err)
	}

	e.mu.Lock()
	e.trees[tree.ID] = tree
	e.mu.Unlock()

	logger.InfoCF("thought", "Tree created", map[string]any{
		"tree_id": tree.ID,
		"roots":   tree.Size(),
	})
	return tree.Clone(), nil
}

// Expand generates children under nodeID, which may be a full node id or
// a prefix naming exactly one node. The batch is committed whole or not at
// all, and never asks for more children than the node has room for.
func (e *Engine) Expand(ctx context.Context, treeID, nodeID string) ([]*Node, error) {
	l := e.treeLock(treeID)
	l.Lock()
	defer l.Unlock()

	e.mu.RLock()
	current, ok := e.trees[treeID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTreeNotFound, treeID)
	}
	parent, ok := current.Lookup(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	if parent.Depth+1 > e.limits.Depth {
		return nil, fmt.Errorf("%w: node %s is at depth %d", ErrDepthLimit, nodeID, parent.Depth)
	}
	if len(parent.Children) >= e.limits.Branch {
		return nil, fmt.Errorf("%w: node %s has %d children", ErrBranchLimit, nodeID, len(parent.Children))
	}

	room := min(e.limits.Expansion, e.limits.Branch-len(parent.Children))
	m := e.mind()
	age := m.Age
	prompt := m.preamble() + fmt.Sprintf(
		"You are Connor, %d years old, following a train of thought that began with %q.\n"+
			"Path so far:\n%s\n"+
			"Trigger Thought: %s\n"+
			"Continue from the trigger thought with up to %d deeper thoughts.\n%s",
		age, current.Trigger, pathTo(current, parent), parent.Content, room, draftSchema)
	drafts := e.generate(ctx, prompt, room)
	if len(drafts) == 0 {
		return nil, ErrNoThoughts
	}

	now := e.now()
	next := current.Clone()
	nodes := e.toNodes(drafts, parent.ID, age, now)
	if err := next.Insert(nodes, e.limits); err != nil {
		logger.WarnCF("thought", "Expansion rejected", map[string]any{
			"tree_id": treeID,
			"node_id": parent.ID,
			"error":   err.Error(),
		})
		return nil, err
	}
	next.UpdatedAt = now
	if err := e.store.SaveTree(next); err != nil {
		return nil, fmt.Errorf("thought: save tree: %w", err)
	}

	e.mu.Lock()
	e.trees[treeID] = next
	e.mu.Unlock()

	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		nc := *next.Nodes[n.ID]
		out = append(out, &nc)
	}
	return out, nil
}

// Brainstorm creates a tree and expands up to branches of its roots.
// Failed expansions are logged and skipped.
func (e *Engine) Brainstorm(ctx context.Context, trigger string, branches int) (*Tree, error) {
	tree, err := e.Create(ctx, trigger)
	if err != nil {
		return nil, err
	}
	for i, root := range tree.Roots() {
		if i >= branches {
			break
		}
		if _, err := e.Expand(ctx, tree.ID, root.ID); err != nil {
			logger.WarnCF("thought", "Brainstorm branch skipped", map[string]any{
				"tree_id": tree.ID,
				"node_id": root.ID,
				"error":   err.Error(),
			})
		}
	}
	return e.Get(tree.ID)
}

// Get returns a copy of the tree.
func (e *Engine) Get(id string) (*Tree, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.trees[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTreeNotFound, id)
	}
	return t.Clone(), nil
}

// Recent returns up to limit trees, most recently updated first.
func (e *Engine) Recent(limit int) []*Tree {
	e.mu.RLock()
	all := make([]*Tree, 0, len(e.trees))
	for _, t := range e.trees {
		all = append(all, t.Clone())
	}
	e.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].UpdatedAt.After(all[j].UpdatedAt)
		}
		return all[i].ID < all[j].ID
	})
	if limit >= 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

const draftSchema = `Respond with a JSON array only. Each element: {"content": string, "emotion": string, "urgency": number 0-1, "confidence": number 0-1}.`

type draft struct {
	Content    string   `json:"content"`
	Emotion    string   `json:"emotion"`
	Urgency    *float64 `json:"urgency"`
	Confidence *float64 `json:"confidence"`
}

// generate asks for drafts and degrades every failure to an empty list.
func (e *Engine) generate(ctx context.Context, prompt string, limit int) []draft {
	var raw json.RawMessage
	if err := e.gen.GenerateStructured(ctx, prompt, thoughtSystemPrompt, &raw); err != nil {
		logger.WarnCF("thought", "Thought generation failed", map[string]any{"error": err.Error()})
		return nil
	}
	drafts := decodeDrafts(raw)
	if len(drafts) > limit {
		drafts = drafts[:limit]
	}
	return drafts
}

func decodeDrafts(raw json.RawMessage) []draft {
	var list []draft
	if err := json.Unmarshal(raw, &list); err != nil {
		var wrapped struct {
			Thoughts []draft `json:"thoughts"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil
		}
		list = wrapped.Thoughts
	}

	out := list[:0]
	for _, d := range list {
		d.Content = strings.TrimSpace(d.Content)
		if d.Content != "" {
			out = append(out, d)
		}
	}
	return out
}

func (e *Engine) toNodes(drafts []draft, parentID string, age int, now time.Time) []*Node {
	nodes := make([]*Node, 0, len(drafts))
	for _, d := range drafts {
		meta := Metadata{
			Emotion:       defaultEmotion,
			Confidence:    defaultConfidence,
			Urgency:       defaultUrgency,
			AgeAtCreation: age,
		}
		if em := strings.TrimSpace(d.Emotion); em != "" {
			meta.Emotion = strings.ToLower(em)
		}
		if d.Confidence != nil {
			meta.Confidence = clampUnit(*d.Confidence)
		}
		if d.Urgency != nil {
			meta.Urgency = clampUnit(*d.Urgency)
		}
		nodes = append(nodes, &Node{
			ID:        uuid.NewString(),
			Content:   d.Content,
			ParentID:  parentID,
			Metadata:  meta,
			CreatedAt: now,
		})
	}
	return nodes
}

// pathTo renders the ancestry of n, root first.
func pathTo(t *Tree, n *Node) string {
	var chain []string
	for cur := n; cur != nil; {
		chain = append(chain, cur.Content)
		if cur.ParentID == "" {
			break
		}
		cur = t.Nodes[cur.ParentID]
	}
	var b strings.Builder
	for i := len(chain) - 1; i >= 0; i-- {
		b.WriteString(strings.Repeat("  ", len(chain)-1-i))
		b.WriteString("- ")
		b.WriteString(chain[i])
		b.WriteByte('\n')
	}
	return b.String()
}
