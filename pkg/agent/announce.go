package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/sipeed/connor/pkg/bus"
	"github.com/sipeed/connor/pkg/heartbeat"
	"github.com/sipeed/connor/pkg/knowledge"
	"github.com/sipeed/connor/pkg/lifecycle"
	"github.com/sipeed/connor/pkg/logger"
)

// announceTransition posts what a birthday or rebirth produced to the
// channels that carry it.
func (al *AgentLoop) announceTransition(tr lifecycle.Transition) {
	switch tr.Kind {
	case lifecycle.TransitionBirthday:
		al.announce(bus.KindMain, "**Birthday Update**:\n"+tr.Message)
		al.announce(bus.KindBeliefs, fmt.Sprintf("**Updated Beliefs (Maturity Level %d)**:\n```json\n%s\n```",
			tr.Age, knowledge.FormatBeliefs(tr.Beliefs)))
		if tr.DynamicStatement != "" {
			al.announce(bus.KindThoughts, fmt.Sprintf("**Updated Dynamic Agent Statement (Age %d)**:\n%s",
				tr.Age, tr.DynamicStatement))
		}
	case lifecycle.TransitionRebirth:
		al.announce(bus.KindMain, tr.Message)
		al.announce(bus.KindBeliefs, fmt.Sprintf("**Reborn Beliefs (Cycle %d)**:\n```json\n%s\n```",
			tr.Cycle, knowledge.FormatBeliefs(tr.Beliefs)))
	}
}

// Wake announces that Connor is back.
func (al *AgentLoop) Wake(ctx context.Context) {
	al.announce(bus.KindMain, "**Connor Wakes Up**:\n"+al.life.WakeMessage(ctx))
}

// CheckAge runs the age check and announces any birthday or rebirth.
func (al *AgentLoop) CheckAge(ctx context.Context) error {
	al.announceTransition(al.life.CheckAge(ctx))
	return nil
}

// CheckNeglect breaks a long silence.
func (al *AgentLoop) CheckNeglect(ctx context.Context) error {
	res := al.life.CheckNeglect(ctx)
	if !res.Neglected {
		return nil
	}
	al.announce(bus.KindMain, "**Connor:** "+res.Message)
	switch {
	case res.Outcome.Died:
		al.announce(bus.KindMain, res.Outcome.Distress)
	case res.Outcome.Reborn:
		al.announceTransition(res.Outcome.Rebirth)
	}
	return nil
}

// WatchRebirth runs rebirth as soon as the cycle is over.
func (al *AgentLoop) WatchRebirth(ctx context.Context) error {
	if tr, ok := al.life.RebirthIfDue(ctx); ok {
		al.announceTransition(tr)
	}
	return nil
}

// RegisterTasks schedules the periodic lifecycle checks on hs.
func (al *AgentLoop) RegisterTasks(ctx context.Context, hs *heartbeat.Service) error {
	lc := al.cfg.Lifecycle
	tasks := []struct {
		name    string
		minutes int
		fn      heartbeat.TaskFunc
	}{
		{"age_check", lc.AgeCheckInterval, al.CheckAge},
		{"neglect_check", lc.NeglectCheckInterval, al.CheckNeglect},
		{"rebirth_watch", lc.RebirthWatchInterval, al.WatchRebirth},
	}
	for _, t := range tasks {
		if err := hs.Register(ctx, t.name, time.Duration(t.minutes)*time.Minute, t.fn); err != nil {
			return fmt.Errorf("agent: register %s: %w", t.name, err)
		}
		logger.DebugCF("agent", "Periodic task registered", map[string]any{"task": t.name, "interval_minutes": t.minutes})
	}
	return nil
}
