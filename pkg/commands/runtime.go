package commands

import (
	"context"

	"github.com/sipeed/connor/pkg/config"
	"github.com/sipeed/connor/pkg/lifecycle"
	"github.com/sipeed/connor/pkg/storage"
	"github.com/sipeed/connor/pkg/thought"
)

// Runtime is what command handlers may do to the running agent.
// Transitions started from a command (AdvanceAge, Rebirth) are announced by
// the runtime itself.
type Runtime interface {
	Config() *config.Config
	Status() lifecycle.Status
	TogglePartyMode() bool
	AdvanceAge(ctx context.Context) lifecycle.Transition
	Rebirth(ctx context.Context) (lifecycle.Transition, bool)
	Thoughts() *thought.Engine
	RecentInteractions(ctx context.Context, n int) ([]storage.Interaction, error)
	LoadVolume(cycle int) (lifecycle.Volume, error)
}

type runtimeContextKey struct{}

// WithRuntime attaches command runtime capabilities to ctx for command handlers.
func WithRuntime(ctx context.Context, runtime Runtime) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, runtimeContextKey{}, runtime)
}

func runtimeFromContext(ctx context.Context) Runtime {
	if ctx == nil {
		return nil
	}
	runtime, _ := ctx.Value(runtimeContextKey{}).(Runtime)
	return runtime
}
