package status

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sipeed/connor/cmd/connor/internal"
	"github.com/sipeed/connor/pkg/config"
	"github.com/sipeed/connor/pkg/knowledge"
	"github.com/sipeed/connor/pkg/lifecycle"
)

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Aliases: []string{"s"},
		Short:   "Show Connor's age, vitals and beliefs",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			rt, err := internal.NewRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			printStatus(cmd.OutOrStdout(), cfg, rt.Lifecycle.Status())
			return nil
		},
	}
}

func printStatus(w io.Writer, cfg *config.Config, st lifecycle.Status) {
	fmt.Fprintf(w, "%s Connor Status\n", internal.Logo)
	fmt.Fprintf(w, "Version: %s\n\n", internal.FormatVersion())

	configPath := internal.GetConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintln(w, "Config:", configPath, "✓")
	} else {
		fmt.Fprintln(w, "Config:", configPath, "✗ (defaults)")
	}
	fmt.Fprintln(w, "Data:", cfg.DataPath())
	fmt.Fprintf(w, "Model: %s (%s)\n\n", cfg.LLM.Model, cfg.LLM.Provider)

	fmt.Fprintf(w, "Age: %d (%d to rebirth)\n", st.ComputedAge, max(cfg.Aging.EndCycle-st.ComputedAge, 0))
	fmt.Fprintf(w, "Cycle: %d\n", st.Cycle)
	fmt.Fprintf(w, "Interactions: %d\n", st.InteractionCount)
	fmt.Fprintf(w, "Depressive hits: %d, neglect: %d\n", st.DepressiveHits, st.NeglectCounter)
	if st.PartyMode {
		fmt.Fprintln(w, "Party mode: on")
	}
	fmt.Fprintf(w, "Vitals: %d bpm, BP index %.2f, deaths %d\n", st.Vitals.BPM, st.Vitals.BPIndex, st.Vitals.DeathCount)
	c := st.Chemicals
	fmt.Fprintf(w, "Chemicals: cortisol %.2f, adrenaline %.2f, oxytocin %.2f, serotonin %.2f\n",
		c.Cortisol, c.Adrenaline, c.Oxytocin, c.Serotonin)
	if !st.LastInteraction.IsZero() {
		fmt.Fprintf(w, "Last interaction: %s\n", st.LastInteraction.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(w, "\nBeliefs:\n%s\n", knowledge.FormatBeliefs(st.Beliefs))
}
