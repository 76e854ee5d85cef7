package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedGenerator answers every structured request with the same payload.
type fixedGenerator struct {
	items string
}

func (g *fixedGenerator) GenerateStructured(_ context.Context, _, _ string, v any) error {
	return json.Unmarshal([]byte(g.items), v)
}

func interactionBackends(t *testing.T, limit int) map[string]InteractionLog {
	t.Helper()
	jsonLog, err := OpenInteractionLog("json", t.TempDir(), limit)
	require.NoError(t, err)
	sqliteLog, err := OpenInteractionLog("sqlite", t.TempDir(), limit)
	require.NoError(t, err)
	t.Cleanup(func() { sqliteLog.Close() })
	return map[string]InteractionLog{"json": jsonLog, "sqlite": sqliteLog}
}

func TestInteractionLog_AppendIsCapped(t *testing.T) {
	for name, log := range interactionBackends(t, 3) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			for i := 0; i < 5; i++ {
				require.NoError(t, log.Append(ctx, Interaction{
					Username: "travis",
					Input:    fmt.Sprintf("msg %d", i),
					Reply:    "ok",
					Age:      37 + i,
				}))
			}

			all, err := log.All(ctx)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "msg 2", all[0].Input)
			assert.Equal(t, "msg 4", all[2].Input)
			for _, in := range all {
				assert.NotEmpty(t, in.ID)
				assert.False(t, in.Timestamp.IsZero())
			}

			recent, err := log.Recent(ctx, 2)
			require.NoError(t, err)
			require.Len(t, recent, 2)
			assert.Equal(t, "msg 3", recent[0].Input, "recent entries are oldest first")
			assert.Equal(t, 41, recent[1].Age)
		})
	}
}

func TestInteractionLog_ArchiveClears(t *testing.T) {
	for name, log := range interactionBackends(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			ts := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
			require.NoError(t, log.Append(ctx, Interaction{ID: "x1", Timestamp: ts, Input: "hello", Age: 44}))
			require.NoError(t, log.Append(ctx, Interaction{ID: "x2", Timestamp: ts, Input: "bye", Age: 45}))

			path := filepath.Join(t.TempDir(), "archive.json")
			require.NoError(t, log.Archive(ctx, path))

			all, err := log.All(ctx)
			require.NoError(t, err)
			assert.Empty(t, all)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			var archived []Interaction
			require.NoError(t, json.Unmarshal(data, &archived))
			require.Len(t, archived, 2)
			assert.Equal(t, "x1", archived[0].ID)
			assert.True(t, ts.Equal(archived[0].Timestamp))
		})
	}
}

func TestInteractionLog_ArchiveEmpty(t *testing.T) {
	for name, log := range interactionBackends(t, 10) {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "archive.json")
			require.NoError(t, log.Archive(t.Context(), path))
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.JSONEq(t, "[]", string(data))
		})
	}
}

func TestOpenInteractionLog_UnknownBackend(t *testing.T) {
	_, err := OpenInteractionLog("redis", t.TempDir(), 10)
	assert.Error(t, err)
}
