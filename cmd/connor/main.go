// Connor is a chat companion that ages, feels, forgets and is reborn.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sipeed/connor/cmd/connor/internal"
	"github.com/sipeed/connor/cmd/connor/internal/chat"
	"github.com/sipeed/connor/cmd/connor/internal/gateway"
	"github.com/sipeed/connor/cmd/connor/internal/status"
	"github.com/sipeed/connor/cmd/connor/internal/think"
	"github.com/sipeed/connor/cmd/connor/internal/tree"
	"github.com/sipeed/connor/cmd/connor/internal/version"
	"github.com/sipeed/connor/cmd/connor/internal/volume"
)

func NewConnorCommand() *cobra.Command {
	short := fmt.Sprintf("%s connor - an agent that grows up, breaks down and starts over v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "connor",
		Short:   short,
		Example: "connor chat",
	}

	cmd.AddCommand(
		gateway.NewGatewayCommand(),
		chat.NewChatCommand(),
		status.NewStatusCommand(),
		think.NewThinkCommand(),
		tree.NewTreeCommand(),
		volume.NewVolumeCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewConnorCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
