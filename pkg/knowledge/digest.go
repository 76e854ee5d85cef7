// Package knowledge turns recent interactions into short digests that
// later prompts read back as Connor's accumulated learnings.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sipeed/connor/pkg/llm"
	"github.com/sipeed/connor/pkg/logger"
	"github.com/sipeed/connor/pkg/storage"
)

const (
	jsonSystemPrompt     = "You are a helpful AI assistant that returns strict JSON."
	reflectiveSystemText = "You are Connor, a reflective AI."
	emptySummary         = "No prior knowledge available."
)

// Persona is the slice of agent state that digest prompts read.
type Persona struct {
	CoreStatement string
	Age           int
	Behavior      string
	Beliefs       map[string]string
}

// Digest owns the rolling knowledge cache.
type Digest struct {
	gen        llm.Client
	store      *storage.Store
	log        storage.InteractionLog
	cacheLimit int
	now        func() time.Time

	mu    sync.RWMutex
	cache []storage.KnowledgeEntry
}

// NewDigest primes the cache from the newest persisted entries.
func NewDigest(gen llm.Client, store *storage.Store, log storage.InteractionLog, cacheLimit int) *Digest {
	d := &Digest{
		gen:        gen,
		store:      store,
		log:        log,
		cacheLimit: cacheLimit,
		now:        time.Now,
	}
	entries, err := store.Knowledge()
	if err != nil {
		logger.WarnCF("knowledge", "Could not load knowledge log", map[string]any{"error": err.Error()})
	}
	d.push(entries...)
	return d
}

func (d *Digest) push(entries ...storage.KnowledgeEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache = append(d.cache, entries...)
	if d.cacheLimit > 0 && len(d.cache) > d.cacheLimit {
		d.cache = append([]storage.KnowledgeEntry(nil), d.cache[len(d.cache)-d.cacheLimit:]...)
	}
}

// Cache returns a copy of the cached entries, oldest first.
func (d *Digest) Cache() []storage.KnowledgeEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]storage.KnowledgeEntry(nil), d.cache...)
}

type summaryPayload struct {
	Self  string `json:"self"`
	User  string `json:"user"`
	World string `json:"world"`
}

// Summarize digests the last limit interactions, persists the entry and
// pushes it into the cache. Malformed responses yield placeholder text.
func (d *Digest) Summarize(ctx context.Context, p Persona, limit int) storage.KnowledgeEntry {
	interactions, err := d.log.Recent(ctx, limit)
	if err != nil {
		logger.WarnCF("knowledge", "Could not read interactions", map[string]any{"error": err.Error()})
	}
	prompt := fmt.Sprintf(
		"Agent Statement: %s\n"+
			"You've had the following interactions with %d-year-old Connor:\n%s\n"+
			"Summarize key learnings. Return JSON with keys 'self', 'user', 'world'.",
		p.CoreStatement, p.Age, FormatHistory(interactions))

	out := llm.GenerateJSON(ctx, d.gen, prompt, jsonSystemPrompt, summaryPayload{})
	entry := storage.KnowledgeEntry{
		Timestamp: d.now(),
		Self:      orPlaceholder(out.Self, "self"),
		User:      orPlaceholder(out.User, "user"),
		World:     orPlaceholder(out.World, "world"),
	}

	if err := d.store.AppendKnowledge(entry); err != nil {
		logger.ErrorCF("knowledge", "Failed to save knowledge", map[string]any{"error": err.Error()})
	}
	d.push(entry)
	logger.InfoCF("knowledge", "Knowledge digested", map[string]any{"interactions": len(interactions)})
	return entry
}

func orPlaceholder(v, key string) string {
	if strings.TrimSpace(v) == "" {
		return fmt.Sprintf("[Invalid JSON response for %s knowledge]", key)
	}
	return v
}

// FormatSummary renders the cache for prompts.
func (d *Digest) FormatSummary() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.cache) == 0 {
		return emptySummary
	}
	var b strings.Builder
	for i, e := range d.cache {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- Self: %s\n  User: %s\n  World: %s", e.Self, e.User, e.World)
	}
	return b.String()
}

// UpdateBeliefs asks for a refreshed belief set. Anything other than a
// non-empty object keeps the previous beliefs.
func (d *Digest) UpdateBeliefs(ctx context.Context, p Persona, username string, historyLimit int) map[string]string {
	interactions, err := d.log.Recent(ctx, historyLimit)
	if err != nil {
		logger.WarnCF("knowledge", "Could not read interactions", map[string]any{"error": err.Error()})
	}
	prompt := fmt.Sprintf(
		"Agent Statement: %s\n"+
			"Age Behavior: %s\n"+
			"Previous Beliefs: %s\n"+
			"Past Learnings:\n%s\n"+
			"Recent Interactions with %s:\n%s\n"+
			"Update the beliefs to reflect the current maturity and specific reflections. "+
			"Return the full belief set as a JSON object of strings.",
		p.CoreStatement, p.Behavior, FormatBeliefs(p.Beliefs), d.FormatSummary(), username, FormatHistory(interactions))

	var raw map[string]any
	if err := d.gen.GenerateStructured(ctx, prompt, jsonSystemPrompt, &raw); err != nil || len(raw) == 0 {
		return p.Beliefs
	}
	beliefs := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			beliefs[k] = val
		default:
			data, _ := json.Marshal(val)
			beliefs[k] = string(data)
		}
	}
	return beliefs
}

// BirthdayMessage is a short reflection on reaching p.Age.
func (d *Digest) BirthdayMessage(ctx context.Context, p Persona, username string) string {
	prompt := fmt.Sprintf(
		"Agent Statement: %s\n"+
			"Age Behavior: %s\n"+
			"Current Beliefs: %s\n"+
			"Past Learnings:\n%s\n"+
			"You are Connor, talking to %s. You've just reached a new level of maturity (age %d). "+
			"Generate a reflective message about your growth in no more than 25 words.",
		p.CoreStatement, p.Behavior, FormatBeliefs(p.Beliefs), d.FormatSummary(), username, p.Age)
	return d.gen.Generate(ctx, prompt, reflectiveSystemText)
}

// FormatBeliefs renders beliefs as indented JSON with sorted keys.
func FormatBeliefs(beliefs map[string]string) string {
	if beliefs == nil {
		return "{}"
	}
	data, err := json.MarshalIndent(beliefs, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// FormatHistory renders interactions as "user: input / Reply: reply" pairs.
func FormatHistory(interactions []storage.Interaction) string {
	var b strings.Builder
	for i, in := range interactions {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s\nReply: %s", in.Username, in.Input, in.Reply)
	}
	return b.String()
}
