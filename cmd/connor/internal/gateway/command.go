package gateway

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sipeed/connor/cmd/connor/internal"
	"github.com/sipeed/connor/pkg/channels"
	"github.com/sipeed/connor/pkg/heartbeat"
	"github.com/sipeed/connor/pkg/logger"
)

func NewGatewayCommand() *cobra.Command {
	var debug bool
	var quiet bool

	cmd := &cobra.Command{
		Use:     "gateway",
		Aliases: []string{"g"},
		Short:   "Run Connor on the configured chat channels",
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return gatewayCmd(debug, !quiet)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVar(&quiet, "no-wake", false, "Skip the wake-up announcement")

	return cmd
}

func gatewayCmd(debug, wake bool) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if debug {
		logger.SetLevel(logger.DEBUG)
	}

	rt, err := internal.NewRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	manager, err := channels.NewManager(cfg, rt.Bus)
	if err != nil {
		return fmt.Errorf("creating channels: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := manager.StartAll(ctx); err != nil {
		return fmt.Errorf("starting channels: %w", err)
	}

	hs := heartbeat.NewService()
	if err := rt.Agent.RegisterTasks(ctx, hs); err != nil {
		manager.StopAll(context.Background())
		return err
	}
	hs.Start(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		rt.Agent.Run(ctx)
	}()

	if wake {
		rt.Agent.Wake(ctx)
	}

	st := rt.Lifecycle.Status()
	fmt.Printf("%s Connor is awake: age %d, cycle %d. Channels: %v\n",
		internal.Logo, st.ComputedAge, st.Cycle, manager.GetEnabledChannels())
	logger.InfoCF("gateway", "Gateway started", map[string]any{
		"age":      st.ComputedAge,
		"cycle":    st.Cycle,
		"channels": manager.GetEnabledChannels(),
	})

	<-ctx.Done()
	logger.InfoC("gateway", "Shutting down")

	hs.Stop()
	rt.Agent.Stop()
	<-done
	manager.StopAll(context.Background())
	logger.InfoC("gateway", "Shutdown complete")
	return nil
}
