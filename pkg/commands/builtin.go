package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sipeed/connor/pkg/knowledge"
	"github.com/sipeed/connor/pkg/lifecycle"
	"github.com/sipeed/connor/pkg/thought"
)

// BuiltinDefinitions is Connor's command set.
func BuiltinDefinitions() []Definition {
	return []Definition{
		{
			Name:        "help",
			Description: "Show this help message",
			Handler: func(_ context.Context, req Request) error {
				return reply(req, FormatHelpMessage(NewRegistry(BuiltinDefinitions()).ForChannel(req.Channel)))
			},
		},
		{
			Name:        "age",
			Description: "Show Connor's maturity level",
			Handler: withRuntime(func(_ context.Context, rt Runtime, req Request) error {
				return reply(req, fmt.Sprintf("I'm at maturity level %d, growing like a badass! 🎉", rt.Status().ComputedAge))
			}),
		},
		{
			Name:        "vitals",
			Description: "Show heart rate, blood pressure and deaths",
			Handler:     withRuntime(handleVitals),
		},
		{
			Name:        "chemicals",
			Aliases:     []string{"chem"},
			Description: "Show the chemical state",
			Handler:     withRuntime(handleChemicals),
		},
		{
			Name:        "beliefs",
			Description: "Show current beliefs",
			Handler: withRuntime(func(_ context.Context, rt Runtime, req Request) error {
				st := rt.Status()
				return reply(req, fmt.Sprintf("**Current Beliefs (Maturity Level %d)**:\n```json\n%s\n```",
					st.ComputedAge, knowledge.FormatBeliefs(st.Beliefs)))
			}),
		},
		{
			Name:        "history",
			Usage:       "!history [n]",
			Description: "Show the last few exchanges",
			Handler:     withRuntime(handleHistory),
		},
		{
			Name:        "party",
			Description: "Toggle party mode",
			Handler: withRuntime(func(_ context.Context, rt Runtime, req Request) error {
				if rt.TogglePartyMode() {
					return reply(req, "🎉 PARTY MODE ON. I'm lit as hell! Let's get weird.")
				}
				return reply(req, "😌 Party's over.")
			}),
		},
		{
			Name:        "birth",
			Description: "Celebrate a birthday now",
			Handler: withRuntime(func(ctx context.Context, rt Runtime, req Request) error {
				tr := rt.AdvanceAge(ctx)
				if tr.Kind == lifecycle.TransitionBirthday {
					return reply(req, fmt.Sprintf("🎂 Maturity level %d.", tr.Age))
				}
				return nil
			}),
		},
		{
			Name:        "rebirth",
			Description: "Start the next cycle if the current one is over",
			Handler: withRuntime(func(ctx context.Context, rt Runtime, req Request) error {
				if _, ok := rt.Rebirth(ctx); !ok {
					st := rt.Status()
					return reply(req, fmt.Sprintf("Not ready yet. Current age %d, rebirth at %d.",
						st.ComputedAge, rt.Config().Aging.EndCycle))
				}
				return nil
			}),
		},
		{
			Name:        "volume",
			Usage:       "!volume [cycle]",
			Description: "Read the memoir of a finished cycle",
			Handler:     withRuntime(handleVolume),
		},
		{
			Name:        "think",
			Usage:       "!think <trigger>",
			Description: "Grow a new thought tree",
			Handler:     withRuntime(handleThink),
		},
		{
			Name:        "expand",
			Usage:       "!expand <tree_id> <node_id>",
			Description: "Branch out from one thought",
			Handler:     withRuntime(handleExpand),
		},
		{
			Name:        "tree",
			Aliases:     []string{"show"},
			Usage:       "!tree <tree_id>",
			Description: "Show a thought tree",
			Handler:     withRuntime(handleTree),
		},
		{
			Name:        "trees",
			Aliases:     []string{"thoughts"},
			Description: "List recent thought trees",
			Handler:     withRuntime(handleTrees),
		},
		{
			Name:        "brainstorm",
			Usage:       "!brainstorm <trigger>",
			Description: "Grow a tree and expand its first branches",
			Handler:     withRuntime(handleBrainstorm),
		},
	}
}

func FormatHelpMessage(defs []Definition) string {
	if len(defs) == 0 {
		return "No commands available."
	}

	lines := make([]string, 0, len(defs))
	for _, def := range defs {
		usage := def.Usage
		if usage == "" {
			usage = Prefix + def.Name
		}
		desc := def.Description
		if desc == "" {
			desc = "No description"
		}
		lines = append(lines, fmt.Sprintf("%s - %s", usage, desc))
	}
	return strings.Join(lines, "\n")
}

func withRuntime(fn func(ctx context.Context, rt Runtime, req Request) error) Handler {
	return func(ctx context.Context, req Request) error {
		rt := runtimeFromContext(ctx)
		if rt == nil {
			return reply(req, "Command unavailable in current context.")
		}
		return fn(ctx, rt, req)
	}
}

func reply(req Request, text string) error {
	if req.Reply == nil {
		return nil
	}
	return req.Reply(text)
}

func handleVitals(_ context.Context, rt Runtime, req Request) error {
	st := rt.Status()
	return reply(req, fmt.Sprintf("🫀 BPM: %d\n🩸 BP Index: %.2f\n🎂 Age: %d\n💀 Deaths: %d",
		st.Vitals.BPM, st.Vitals.BPIndex, st.ComputedAge, st.Vitals.DeathCount))
}

func handleChemicals(_ context.Context, rt Runtime, req Request) error {
	c := rt.Status().Chemicals
	return reply(req, fmt.Sprintf("🧪 Cortisol: %.2f\n⚡ Adrenaline: %.2f\n💕 Oxytocin: %.2f\n😊 Serotonin: %.2f",
		c.Cortisol, c.Adrenaline, c.Oxytocin, c.Serotonin))
}

func handleHistory(ctx context.Context, rt Runtime, req Request) error {
	n := rt.Config().Memory.RecentHistoryLimit
	if args := req.Args(); len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil && v > 0 {
			n = v
		}
	}
	interactions, err := rt.RecentInteractions(ctx, n)
	if err != nil {
		return reply(req, fmt.Sprintf("I can't remember right now: %v", err))
	}
	if len(interactions) == 0 {
		return reply(req, "We haven't talked yet.")
	}
	return reply(req, "**Recent History**:\n"+knowledge.FormatHistory(interactions))
}

func handleVolume(_ context.Context, rt Runtime, req Request) error {
	cycle := rt.Status().Cycle - 1
	if args := req.Args(); len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			return reply(req, "Usage: !volume [cycle]")
		}
		cycle = v
	}
	if cycle < 1 {
		return reply(req, "I haven't finished a life yet.")
	}
	vol, err := rt.LoadVolume(cycle)
	if errors.Is(err, os.ErrNotExist) {
		return reply(req, fmt.Sprintf("There is no volume for cycle %d.", cycle))
	}
	if err != nil {
		return reply(req, fmt.Sprintf("I couldn't open that volume: %v", err))
	}
	return reply(req, FormatVolume(vol))
}

// FormatVolume renders a memoir for chat.
func FormatVolume(vol lifecycle.Volume) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📖 **%s** (final age %d)\n", vol.Title, vol.FinalAge)
	if len(vol.Chapters) == 0 {
		b.WriteString("\n*No chapters were written.*")
	}
	for _, ch := range vol.Chapters {
		fmt.Fprintf(&b, "\n**%s: %s**\n%s\n", ch.Decade, ch.Title, ch.Summary)
	}
	return strings.TrimRight(b.String(), "\n")
}

func handleThink(ctx context.Context, rt Runtime, req Request) error {
	trigger := req.ArgText()
	if trigger == "" {
		return reply(req, "Usage: !think <trigger>")
	}
	tree, err := rt.Thoughts().Create(ctx, trigger)
	if err != nil {
		return reply(req, thoughtError(err))
	}
	return reply(req, fmt.Sprintf("%s\n%s", thought.FormatWithIDs(tree, -1), thought.Summary(tree)))
}

func handleExpand(ctx context.Context, rt Runtime, req Request) error {
	args := req.Args()
	if len(args) < 2 {
		return reply(req, "Usage: !expand <tree_id> <node_id>")
	}
	nodes, err := rt.Thoughts().Expand(ctx, args[0], args[1])
	if err != nil {
		return reply(req, thoughtError(err))
	}
	if len(nodes) == 0 {
		return reply(req, "That thought can't branch any further.")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🌿 %d new thoughts under `%s`:\n", len(nodes), thought.ShortID(nodes[0].ParentID))
	for _, n := range nodes {
		fmt.Fprintf(&b, "- `%s` %s (%s)\n", thought.ShortID(n.ID), n.Content, n.Metadata.Emotion)
	}
	return reply(req, strings.TrimRight(b.String(), "\n"))
}

func handleTree(_ context.Context, rt Runtime, req Request) error {
	args := req.Args()
	if len(args) < 1 {
		return reply(req, "Usage: !tree <tree_id>")
	}
	tree, err := rt.Thoughts().Get(args[0])
	if err != nil {
		return reply(req, thoughtError(err))
	}
	return reply(req, thought.FormatWithIDs(tree, -1))
}

func handleTrees(_ context.Context, rt Runtime, req Request) error {
	trees := rt.Thoughts().Recent(rt.Config().Thought.RecentLimit)
	if len(trees) == 0 {
		return reply(req, "My mind is quiet. No thought trees yet.")
	}
	lines := make([]string, 0, len(trees))
	for _, t := range trees {
		lines = append(lines, "- "+thought.Summary(t))
	}
	return reply(req, "🧠 **Recent Thought Trees**:\n"+strings.Join(lines, "\n"))
}

func handleBrainstorm(ctx context.Context, rt Runtime, req Request) error {
	trigger := req.ArgText()
	if trigger == "" {
		return reply(req, "Usage: !brainstorm <trigger>")
	}
	tree, err := rt.Thoughts().Brainstorm(ctx, trigger, rt.Config().Thought.BrainstormBranches)
	if err != nil {
		return reply(req, thoughtError(err))
	}
	return reply(req, fmt.Sprintf("%s\n%s", thought.FormatWithIDs(tree, -1), thought.Summary(tree)))
}

func thoughtError(err error) string {
	switch {
	case errors.Is(err, thought.ErrNotFound):
		return "I can't find that tree or thought."
	case errors.Is(err, thought.ErrLimitExceeded):
		return "That thought can't branch any further."
	case errors.Is(err, thought.ErrNoThoughts):
		return "My mind went blank. Try again?"
	default:
		return fmt.Sprintf("Something went wrong while thinking: %v", err)
	}
}
