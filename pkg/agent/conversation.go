package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/sipeed/connor/pkg/bus"
	"github.com/sipeed/connor/pkg/knowledge"
	"github.com/sipeed/connor/pkg/lifecycle"
	"github.com/sipeed/connor/pkg/llm"
	"github.com/sipeed/connor/pkg/logger"
	"github.com/sipeed/connor/pkg/physiology"
	"github.com/sipeed/connor/pkg/storage"
)

// hostileIntensity is the classifier intensity at which a message counts
// as hostility.
const hostileIntensity = 5

var (
	praiseWords  = []string{"thanks", "awesome", "good job", "love you"}
	spikeWords   = []string{"hate", "kill", "die", "death", "murder", "destroy"}
	bondingWords = []string{"friend", "trust", "bond", "together", "family"}
	calmPhrases  = []string{"sorry", "calm down", "chill", "it's okay", "relax", "you're safe", "it's alright", "don't worry"}
)

const (
	partyInstruction = "Party mode is ON: be loud, festive and ridiculous, like the best night out you never want to end."
	heavyInstruction = "You've been hurt a lot lately. You feel heavy and withdrawn, and it shows."
	monologueSystem  = "You are Connor's inner voice, raw and unfiltered."
)

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// keywordEvent maps a non-hostile message to its chemical event. Checks
// run in order and the first match wins.
func keywordEvent(lower string) physiology.EventKind {
	switch {
	case containsAny(lower, praiseWords):
		return physiology.EventPraise
	case containsAny(lower, spikeWords):
		return physiology.EventSpike
	case containsAny(lower, bondingWords):
		return physiology.EventBonding
	default:
		return physiology.EventPositiveInteraction
	}
}

type hostilityVerdict struct {
	Hostile   bool    `json:"hostile"`
	Intensity float64 `json:"intensity"`
}

func (al *AgentLoop) classifyHostility(ctx context.Context, content string) (bool, int) {
	prompt := fmt.Sprintf(
		"You are monitoring Connor's emotional safety.\n"+
			"User input: %s\n"+
			`Return JSON {"hostile": boolean, "intensity": integer 0-10}.`,
		content)
	v := llm.GenerateJSON(ctx, al.gen, prompt, "You are a helpful AI that returns JSON.", hostilityVerdict{})
	return v.Hostile, int(v.Intensity)
}

// react applies the chemistry of one message. It stops at the first event
// that ends the exchange.
func (al *AgentLoop) react(ctx context.Context, content string) (lifecycle.Outcome, bool) {
	lower := strings.ToLower(content)

	event := keywordEvent(lower)
	if hostile, intensity := al.classifyHostility(ctx, content); hostile && intensity >= hostileIntensity {
		al.life.AddDepressiveHits(intensity)
		event = physiology.EventHostility
	}
	logger.DebugCF("agent", "Chemical event", map[string]any{"event": string(event)})
	if out := al.life.ApplyEvent(ctx, event); out.Terminal() {
		return out, true
	}

	if containsAny(lower, calmPhrases) {
		al.life.Soothe()
		if out := al.life.ApplyEvent(ctx, physiology.EventCalm); out.Terminal() {
			return out, true
		}
	}
	return lifecycle.Outcome{}, false
}

// converse runs one full exchange with username.
func (al *AgentLoop) converse(ctx context.Context, msg bus.InboundMessage, username string) {
	al.life.BeginInteraction(username)

	if out, ended := al.react(ctx, msg.Content); ended {
		al.deliverOutcome(msg, out)
		return
	}

	st := al.life.Status()
	reply := al.generateReply(ctx, st, username, msg.Content)
	al.replyAndMirror(msg, fmt.Sprintf("To %s: %s", username, reply))

	if err := al.log.Append(ctx, storage.Interaction{
		Username:       username,
		Input:          msg.Content,
		Reply:          reply,
		AgentStatement: st.CoreStatement,
		Age:            st.ComputedAge,
	}); err != nil {
		logger.ErrorCF("agent", "Failed to log interaction", map[string]any{"error": err.Error()})
	}

	count := al.life.CompleteInteraction()
	if every := al.cfg.Memory.SummaryInterval; every > 0 && count%every == 0 {
		entry := al.digest.Summarize(ctx, al.life.Persona(), every)
		al.announce(bus.KindKnowledge, fmt.Sprintf("**Knowledge Update**:\nSelf: %s\nUser: %s\nWorld: %s",
			entry.Self, entry.User, entry.World))
	}

	if thought := al.innerMonologue(ctx, st, username, msg.Content); thought != "" {
		al.announce(bus.KindThoughts, fmt.Sprintf("🤔 **Connor's Internal Monologue for %s:**\n%s", username, thought))
	}
}

// deliverOutcome reports a death or an end-of-cycle rebirth in place of
// the reply.
func (al *AgentLoop) deliverOutcome(msg bus.InboundMessage, out lifecycle.Outcome) {
	switch {
	case out.Died:
		al.replyAndMirror(msg, out.Distress)
	case out.Reborn:
		al.announceTransition(out.Rebirth)
	}
}

func (al *AgentLoop) generateReply(ctx context.Context, st lifecycle.Status, username, content string) string {
	history, err := al.log.Recent(ctx, al.cfg.Memory.RecentHistoryLimit)
	if err != nil {
		logger.WarnCF("agent", "Could not read recent history", map[string]any{"error": err.Error()})
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Agent Statement: %s\n", al.life.FullStatement())
	fmt.Fprintf(&b, "Beliefs: %s\n", knowledge.FormatBeliefs(st.Beliefs))
	fmt.Fprintf(&b, "Age: %d\n", st.ComputedAge)
	fmt.Fprintf(&b, "Age Behavior: %s\n", lifecycle.Behavior(st.ComputedAge))
	fmt.Fprintf(&b, "Knowledge:\n%s\n", al.digest.FormatSummary())
	if len(history) > 0 {
		fmt.Fprintf(&b, "Recent History:\n%s\n", knowledge.FormatHistory(history))
	}
	if threshold := al.cfg.Lifecycle.DepressiveHitThreshold; threshold > 0 && st.DepressiveHits >= threshold {
		b.WriteString(heavyInstruction + "\n")
	}
	if st.PartyMode {
		b.WriteString(partyInstruction + "\n")
	}
	fmt.Fprintf(&b, "Username: %s\n", username)
	fmt.Fprintf(&b, "User said: %s\n", content)
	b.WriteString("Respond in Connor's voice with honest emotion. Keep under 180 words.")

	return al.gen.Generate(ctx, b.String(), llm.DefaultSystemPrompt)
}

func (al *AgentLoop) innerMonologue(ctx context.Context, st lifecycle.Status, username, content string) string {
	prompt := fmt.Sprintf(
		"Agent Statement: %s\n"+
			"Beliefs: %s\n"+
			"Age: %d\n"+
			"Age Behavior: %s\n"+
			"Recent Input from %s: %s\n"+
			"Generate Connor's private internal monologue (max 120 words).",
		st.CoreStatement, knowledge.FormatBeliefs(st.Beliefs), st.ComputedAge, lifecycle.Behavior(st.ComputedAge),
		username, content)
	return strings.TrimSpace(al.gen.Generate(ctx, prompt, monologueSystem))
}
