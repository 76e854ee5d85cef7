package volume

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sipeed/connor/cmd/connor/internal"
)

func NewVolumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "volume [cycle]",
		Short: "Read the memoir of a finished cycle",
		Args:  cobra.MaximumNArgs(1),
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
			return rt.RunChatCommand(cmd.Context(), cmd.OutOrStdout(), strings.TrimSpace("!volume "+strings.Join(args, " ")))
		},
	}
}
