package storage

import (
	"fmt"
	"path/filepath"
)

// OpenInteractionLog returns the backend named by kind: "json" (default)
// or "sqlite".
func OpenInteractionLog(kind, dir string, limit int) (InteractionLog, error) {
	switch kind {
	case "", "json":
		return NewJSONInteractionLog(dir, limit)
	case "sqlite":
		return NewSQLiteInteractionLog(filepath.Join(dir, "interactions.db"), limit)
	default:
		return nil, fmt.Errorf("storage: unknown interaction backend %q", kind)
	}
}
