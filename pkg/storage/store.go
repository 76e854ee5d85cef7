// Package storage persists Connor's memory as flat files under one data
// directory. Every rewrite goes through a temp file and rename.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sipeed/connor/pkg/logger"
	"github.com/sipeed/connor/pkg/thought"
	"github.com/sipeed/connor/pkg/utils"
)

const (
	coreStatementFile    = "agent_statement.txt"
	dynamicStatementFile = "dynamic_agent_statement.txt"
	beliefsFile          = "beliefs.json"
	knowledgeFile        = "knowledge_log.json"
	thoughtsFile         = "thought_trees.json"
	archiveDir           = "archives"
	rebirthLogFile       = "rebirth_log.txt"
	usernamesFile        = "usernames.json"
)

// Store is the flat-file layout. Each file has its own lock.
type Store struct {
	dir           string
	knowledgeKeep int
	locks         sync.Map // map[string]*sync.Mutex, one per file
}

func NewStore(dir string, knowledgeKeep int) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, archiveDir), 0o755); err != nil {
		return nil, fmt.Errorf("storage: create directory: %w", err)
	}
	return &Store{dir: dir, knowledgeKeep: knowledgeKeep}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) fileLock(name string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(name, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *Store) readText(name string) (string, error) {
	l := s.fileLock(name)
	l.Lock()
	defer l.Unlock()
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("storage: read %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *Store) writeText(name, text string) error {
	l := s.fileLock(name)
	l.Lock()
	defer l.Unlock()
	if err := utils.WriteFileAtomic(s.path(name), []byte(text), 0o644, 0o755); err != nil {
		return fmt.Errorf("storage: write %s: %w", name, err)
	}
	return nil
}

func (s *Store) readJSON(name string, v any) error {
	return readJSONFile(s.path(name), v)
}

func (s *Store) writeJSON(name string, v any) error {
	return writeJSONFile(s.path(name), v)
}

// readJSONFile decodes path into v. A missing or empty file leaves v untouched.
func readJSONFile(path string, v any) error {
	name := filepath.Base(path)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("storage: read %s: %w", name, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("storage: decode %s: %w", name, err)
	}
	return nil
}

func writeJSONFile(path string, v any) error {
	name := filepath.Base(path)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", name, err)
	}
	if err := utils.WriteFileAtomic(path, data, 0o644, 0o755); err != nil {
		return fmt.Errorf("storage: write %s: %w", name, err)
	}
	return nil
}

func (s *Store) CoreStatement() (string, error)      { return s.readText(coreStatementFile) }
func (s *Store) SaveCoreStatement(text string) error { return s.writeText(coreStatementFile, text) }
func (s *Store) DynamicStatement() (string, error)   { return s.readText(dynamicStatementFile) }
func (s *Store) SaveDynamicStatement(text string) error {
	return s.writeText(dynamicStatementFile, text)
}

// Beliefs returns nil when nothing has been saved yet.
func (s *Store) Beliefs() (map[string]string, error) {
	l := s.fileLock(beliefsFile)
	l.Lock()
	defer l.Unlock()
	var beliefs map[string]string
	if err := s.readJSON(beliefsFile, &beliefs); err != nil {
		return nil, err
	}
	return beliefs, nil
}

// SaveBeliefs replaces the whole belief set.
func (s *Store) SaveBeliefs(beliefs map[string]string) error {
	l := s.fileLock(beliefsFile)
	l.Lock()
	defer l.Unlock()
	return s.writeJSON(beliefsFile, beliefs)
}

// Usernames maps a platform sender id to the name the user introduced
// themselves with.
func (s *Store) Usernames() (map[string]string, error) {
	l := s.fileLock(usernamesFile)
	l.Lock()
	defer l.Unlock()
	names := make(map[string]string)
	if err := s.readJSON(usernamesFile, &names); err != nil {
		return nil, err
	}
	return names, nil
}

func (s *Store) SaveUsername(senderID, name string) error {
	l := s.fileLock(usernamesFile)
	l.Lock()
	defer l.Unlock()
	names := make(map[string]string)
	if err := s.readJSON(usernamesFile, &names); err != nil {
		logger.WarnCF("storage", "Username registry unreadable, starting fresh", map[string]any{"error": err.Error()})
		names = make(map[string]string)
	}
	names[senderID] = name
	return s.writeJSON(usernamesFile, names)
}

// KnowledgeEntry is one digest of recent interactions.
type KnowledgeEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Self      string    `json:"self"`
	User      string    `json:"user"`
	World     string    `json:"world"`
}

// AppendKnowledge adds e and keeps only the newest knowledgeKeep entries.
func (s *Store) AppendKnowledge(e KnowledgeEntry) error {
	l := s.fileLock(knowledgeFile)
	l.Lock()
	defer l.Unlock()
	var entries []KnowledgeEntry
	if err := s.readJSON(knowledgeFile, &entries); err != nil {
		logger.WarnCF("storage", "Knowledge log unreadable, starting fresh", map[string]any{"error": err.Error()})
		entries = nil
	}
	entries = append(entries, e)
	if s.knowledgeKeep > 0 && len(entries) > s.knowledgeKeep {
		entries = entries[len(entries)-s.knowledgeKeep:]
	}
	return s.writeJSON(knowledgeFile, entries)
}

func (s *Store) Knowledge() ([]KnowledgeEntry, error) {
	l := s.fileLock(knowledgeFile)
	l.Lock()
	defer l.Unlock()
	var entries []KnowledgeEntry
	if err := s.readJSON(knowledgeFile, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// LoadTrees returns every persisted thought tree keyed by id.
func (s *Store) LoadTrees() (map[string]*thought.Tree, error) {
	l := s.fileLock(thoughtsFile)
	l.Lock()
	defer l.Unlock()
	trees := make(map[string]*thought.Tree)
	if err := s.readJSON(thoughtsFile, &trees); err != nil {
		return nil, err
	}
	return trees, nil
}

// SaveTree replaces one tree in the collection.
func (s *Store) SaveTree(t *thought.Tree) error {
	l := s.fileLock(thoughtsFile)
	l.Lock()
	defer l.Unlock()
	trees := make(map[string]*thought.Tree)
	if err := s.readJSON(thoughtsFile, &trees); err != nil {
		return err
	}
	trees[t.ID] = t
	return s.writeJSON(thoughtsFile, trees)
}

// SaveVolume writes the retrospective of a completed cycle.
func (s *Store) SaveVolume(cycle int, v any) error {
	return s.writeJSON(filepath.Join(archiveDir, fmt.Sprintf("volume_%d.json", cycle)), v)
}

// LoadVolume decodes the volume for cycle into v.
func (s *Store) LoadVolume(cycle int, v any) error {
	name := filepath.Join(archiveDir, fmt.Sprintf("volume_%d.json", cycle))
	if _, err := os.Stat(s.path(name)); err != nil {
		return fmt.Errorf("storage: no volume for cycle %d: %w", cycle, os.ErrNotExist)
	}
	return s.readJSON(name, v)
}

func (s *Store) SaveWill(cycle int, v any) error {
	return s.writeJSON(filepath.Join(archiveDir, fmt.Sprintf("will_%d.json", cycle)), v)
}

// AppendRebirthLog appends one line to the rebirth log.
func (s *Store) AppendRebirthLog(line string) error {
	l := s.fileLock(rebirthLogFile)
	l.Lock()
	defer l.Unlock()
	f, err := os.OpenFile(s.path(filepath.Join(archiveDir, rebirthLogFile)), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("storage: open rebirth log: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, strings.TrimRight(line, "\n")); err != nil {
		return fmt.Errorf("storage: append rebirth log: %w", err)
	}
	return nil
}

// ArchivePath returns a timestamped file path under the archive directory.
func (s *Store) ArchivePath(prefix string, now time.Time) string {
	return s.path(filepath.Join(archiveDir, fmt.Sprintf("%s_%s.json", prefix, now.UTC().Format("20060102T150405Z"))))
}
