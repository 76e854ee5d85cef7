package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVersionCommand(t *testing.T) {
	cmd := NewVersionCommand()

	require.NotNil(t, cmd)
	assert.Equal(t, "version", cmd.Use)
	assert.Equal(t, []string{"v"}, cmd.Aliases)
	assert.Equal(t, "Show version information", cmd.Short)
	assert.False(t, cmd.HasFlags())
	assert.False(t, cmd.HasSubCommands())
	assert.NotNil(t, cmd.Run)
	assert.Nil(t, cmd.RunE)
}
