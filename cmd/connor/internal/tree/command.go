package tree

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sipeed/connor/cmd/connor/internal"
)

func NewTreeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree [tree_id] [node_id]",
		Short: "List thought trees, show one, or expand a thought",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := internal.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			rt, err := internal.NewRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			return rt.RunChatCommand(cmd.Context(), cmd.OutOrStdout(), chatCommand(args))
		},
	}
	return cmd
}

func chatCommand(args []string) string {
	switch len(args) {
	case 0:
		return "!trees"
	case 1:
		return "!tree " + args[0]
	default:
		return "!expand " + args[0] + " " + args[1]
	}
}
