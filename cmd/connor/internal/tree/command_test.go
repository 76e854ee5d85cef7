package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTreeCommand(t *testing.T) {
	cmd := NewTreeCommand()
	assert.Equal(t, "tree [tree_id] [node_id]", cmd.Use)
	assert.Error(t, cmd.Args(cmd, []string{"a", "b", "c"}))
}

func TestChatCommand(t *testing.T) {
	assert.Equal(t, "!trees", chatCommand(nil))
	assert.Equal(t, "!tree abc", chatCommand([]string{"abc"}))
	assert.Equal(t, "!expand abc n1", chatCommand([]string{"abc", "n1"}))
}
