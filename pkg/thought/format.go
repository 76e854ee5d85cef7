package thought

import (
	"fmt"
	"strings"
)

// Format renders the forest depth-first, one "- content" line per node,
// indented two spaces per level. Nodes deeper than maxDepth are omitted;
// a negative maxDepth renders everything.
func Format(t *Tree, maxDepth int) string {
	return render(t, maxDepth, false)
}

// FormatWithIDs is Format with each node's short id after the dash, so a
// reader can name the thought to expand.
func FormatWithIDs(t *Tree, maxDepth int) string {
	return render(t, maxDepth, true)
}

func render(t *Tree, maxDepth int, withIDs bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🌳 Thought Tree: %s (Age %d)\n", t.Trigger, t.AgeAtCreation)

	var walk func(n *Node)
	walk = func(n *Node) {
		if maxDepth >= 0 && n.Depth > maxDepth {
			return
		}
		b.WriteString(strings.Repeat("  ", n.Depth))
		b.WriteString("- ")
		if withIDs {
			fmt.Fprintf(&b, "`%s` ", ShortID(n.ID))
		}
		b.WriteString(n.Content)
		b.WriteByte('\n')
		for _, id := range n.Children {
			if child, ok := t.Nodes[id]; ok {
				walk(child)
			}
		}
	}
	for _, root := range t.Roots() {
		walk(root)
	}
	return b.String()
}

func Summary(t *Tree) string {
	return fmt.Sprintf("Tree `%s` about %s with %d thoughts", t.ID, t.Trigger, len(t.Nodes))
}
