package chat

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sipeed/connor/cmd/connor/internal"
	"github.com/sipeed/connor/pkg/channels"
	"github.com/sipeed/connor/pkg/config"
	"github.com/sipeed/connor/pkg/heartbeat"
	"github.com/sipeed/connor/pkg/logger"
)

func NewChatCommand() *cobra.Command {
	var (
		name  string
		debug bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to Connor from the terminal",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return chatCmd(name, debug)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", defaultName(), "Name Connor knows you by")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func defaultName() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "friend"
}

func chatCmd(name string, debug bool) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if debug {
		logger.SetLevel(logger.DEBUG)
	} else if cfg.Log.File == "" {
		// keep the prompt readable
		logger.SetLevel(logger.WARN)
	}

	rt, err := internal.NewRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	historyFile := filepath.Join(config.ResolveRuntimePaths().HomeDir, "chat_history")
	term, err := channels.NewReadlineTerminal(name, historyFile, rt.Bus)
	if err != nil {
		return err
	}

	manager, err := channels.NewManager(nil, rt.Bus)
	if err != nil {
		return err
	}
	manager.RegisterChannel(term.Name(), term)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := manager.StartAll(ctx); err != nil {
		return err
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

	st := rt.Lifecycle.Status()
	fmt.Printf("%s Connor, age %d, cycle %d. Type !help for commands, exit to leave.\n\n",
		internal.Logo, st.ComputedAge, st.Cycle)
	rt.Agent.Wake(ctx)

	select {
	case <-ctx.Done():
	case <-term.Done():
	}
	stop()

	hs.Stop()
	rt.Agent.Stop()
	<-done
	manager.StopAll(context.Background())
	fmt.Println("Goodbye!")
	return nil
}
