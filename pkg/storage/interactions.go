package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const chatMemoryFile = "chat_memory.json"

// Interaction is one exchange with a user.
type Interaction struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Username       string    `json:"username"`
	Input          string    `json:"input"`
	Reply          string    `json:"reply"`
	AgentStatement string    `json:"agent_statement"`
	Age            int       `json:"age"`
}

// InteractionLog is the capped record of exchanges in the current cycle.
type InteractionLog interface {
	Append(ctx context.Context, in Interaction) error
	// Recent returns up to n entries, oldest first.
	Recent(ctx context.Context, n int) ([]Interaction, error)
	All(ctx context.Context) ([]Interaction, error)
	// Archive writes every entry to path and clears the log.
	Archive(ctx context.Context, path string) error
	Close() error
}

// JSONInteractionLog keeps the log as a single JSON array capped at limit.
type JSONInteractionLog struct {
	path  string
	limit int
	mu    sync.Mutex
}

func NewJSONInteractionLog(dir string, limit int) (*JSONInteractionLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create directory: %w", err)
	}
	return &JSONInteractionLog{path: filepath.Join(dir, chatMemoryFile), limit: limit}, nil
}

func (l *JSONInteractionLog) load() ([]Interaction, error) {
	var entries []Interaction
	if err := readJSONFile(l.path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (l *JSONInteractionLog) Append(_ context.Context, in Interaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries, err := l.load()
	if err != nil {
		return err
	}
	entries = append(entries, stamp(in))
	if l.limit > 0 && len(entries) > l.limit {
		entries = entries[len(entries)-l.limit:]
	}
	return writeJSONFile(l.path, entries)
}

func (l *JSONInteractionLog) Recent(_ context.Context, n int) ([]Interaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries, err := l.load()
	if err != nil {
		return nil, err
	}
	if n >= 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

func (l *JSONInteractionLog) All(_ context.Context) ([]Interaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

func (l *JSONInteractionLog) Archive(_ context.Context, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries, err := l.load()
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []Interaction{}
	}
	if err := writeJSONFile(path, entries); err != nil {
		return err
	}
	return writeJSONFile(l.path, []Interaction{})
}

func (l *JSONInteractionLog) Close() error { return nil }

func stamp(in Interaction) Interaction {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now()
	}
	return in
}
