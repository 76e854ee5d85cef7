package think

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sipeed/connor/cmd/connor/internal"
)

func NewThinkCommand() *cobra.Command {
	var brainstorm bool

	cmd := &cobra.Command{
		Use:   "think <trigger>",
		Short: "Grow a thought tree from a trigger",
		Args:  cobra.MinimumNArgs(1),
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
			return rt.RunChatCommand(cmd.Context(), cmd.OutOrStdout(), chatCommand(brainstorm, args))
		},
	}

	cmd.Flags().BoolVarP(&brainstorm, "brainstorm", "b", false, "Also expand the first branches")

	return cmd
}

func chatCommand(brainstorm bool, args []string) string {
	name := "!think"
	if brainstorm {
		name = "!brainstorm"
	}
	return name + " " + strings.Join(args, " ")
}
