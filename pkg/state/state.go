package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sipeed/connor/pkg/logger"
	"github.com/sipeed/connor/pkg/physiology"
)

// Snapshot is the persisted form of the lifecycle scalars.
type Snapshot struct {
	Age              int                  `json:"current_age"`
	StartTime        time.Time            `json:"start_time"`
	Cycle            int                  `json:"cycle"`
	DepressiveHits   int                  `json:"depressive_hits"`
	NeglectCounter   int                  `json:"neglect_counter"`
	InteractionCount int                  `json:"interaction_count"`
	PartyMode        bool                 `json:"party_mode"`
	LastInteraction  time.Time            `json:"last_interaction"`
	Chemicals        physiology.Chemicals `json:"chemicals"`
	Vitals           physiology.Vitals    `json:"vitals"`

	// Timestamp is the last time this snapshot was written
	Timestamp time.Time `json:"timestamp"`
}

// Manager manages the persistent snapshot with atomic saves.
type Manager struct {
	state     *Snapshot
	loaded    bool
	mu        sync.RWMutex
	stateFile string
}

// NewManager creates a state manager rooted at dir and loads any
// existing snapshot. A corrupt snapshot is logged and ignored.
func NewManager(dir string) *Manager {
	stateDir := filepath.Join(dir, "state")
	stateFile := filepath.Join(stateDir, "state.json")

	os.MkdirAll(stateDir, 0o755)

	sm := &Manager{
		stateFile: stateFile,
		state:     &Snapshot{},
	}
	if err := sm.load(); err != nil {
		logger.WarnCF("state", "Ignoring unreadable snapshot", map[string]any{
			"path":  stateFile,
			"error": err.Error(),
		})
		sm.state = &Snapshot{}
		sm.loaded = false
	}
	return sm
}

// Load returns the stored snapshot and whether one existed.
func (sm *Manager) Load() (Snapshot, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return *sm.state, sm.loaded
}

// Save atomically replaces the snapshot on disk.
// This method uses a temp file + rename pattern for atomic writes,
// ensuring that the state file is never corrupted even if the process crashes.
func (sm *Manager) Save(s Snapshot) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s.Timestamp = time.Now()
	sm.state = &s
	sm.loaded = true

	if err := sm.saveAtomic(); err != nil {
		return fmt.Errorf("failed to save state atomically: %w", err)
	}
	return nil
}

// GetTimestamp returns the timestamp of the last snapshot write.
func (sm *Manager) GetTimestamp() time.Time {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state.Timestamp
}

// saveAtomic performs an atomic save using temp file + rename.
//
// Must be called with the lock held.
func (sm *Manager) saveAtomic() error {
	tempFile := sm.stateFile + ".tmp"

	data, err := json.MarshalIndent(sm.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, sm.stateFile); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// load loads the snapshot from disk.
func (sm *Manager) load() error {
	data, err := os.ReadFile(sm.stateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}

	if err := json.Unmarshal(data, sm.state); err != nil {
		return fmt.Errorf("failed to unmarshal state: %w", err)
	}
	sm.loaded = true
	return nil
}
