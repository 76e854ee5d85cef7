package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteInteractionLog keeps the interaction log in a SQLite table. The cap
// is applied on insert, like the JSON backend.
type SQLiteInteractionLog struct {
	db    *sql.DB
	limit int
}

func NewSQLiteInteractionLog(dbPath string, limit int) (*SQLiteInteractionLog, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("storage: create directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	l := &SQLiteInteractionLog{db: db, limit: limit}
	if err := l.init(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteInteractionLog) init() error {
	_, err := l.db.Exec(`CREATE TABLE IF NOT EXISTS interactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		ts INTEGER NOT NULL,
		username TEXT,
		input TEXT,
		reply TEXT,
		agent_statement TEXT,
		age INTEGER
	);`)
	if err != nil {
		return fmt.Errorf("storage: create interactions table: %w", err)
	}
	return nil
}

func (l *SQLiteInteractionLog) Append(ctx context.Context, in Interaction) error {
	in = stamp(in)
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO interactions (id, ts, username, input, reply, agent_statement, age) VALUES (?, ?, ?, ?, ?, ?, ?)",
		in.ID, in.Timestamp.UnixNano(), in.Username, in.Input, in.Reply, in.AgentStatement, in.Age)
	if err != nil {
		return fmt.Errorf("storage: insert interaction: %w", err)
	}
	if l.limit > 0 {
		_, err = tx.ExecContext(ctx,
			"DELETE FROM interactions WHERE seq NOT IN (SELECT seq FROM interactions ORDER BY seq DESC LIMIT ?)",
			l.limit)
		if err != nil {
			return fmt.Errorf("storage: trim interactions: %w", err)
		}
	}
	return tx.Commit()
}

func (l *SQLiteInteractionLog) Recent(ctx context.Context, n int) ([]Interaction, error) {
	if n < 0 {
		return l.All(ctx)
	}
	return l.query(ctx,
		"SELECT id, ts, username, input, reply, agent_statement, age FROM (SELECT * FROM interactions ORDER BY seq DESC LIMIT ?) ORDER BY seq ASC",
		n)
}

func (l *SQLiteInteractionLog) All(ctx context.Context) ([]Interaction, error) {
	return l.query(ctx, "SELECT id, ts, username, input, reply, agent_statement, age FROM interactions ORDER BY seq ASC")
}

func (l *SQLiteInteractionLog) Archive(ctx context.Context, path string) error {
	entries, err := l.All(ctx)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []Interaction{}
	}
	if err := writeJSONFile(path, entries); err != nil {
		return err
	}
	if _, err := l.db.ExecContext(ctx, "DELETE FROM interactions"); err != nil {
		return fmt.Errorf("storage: clear interactions: %w", err)
	}
	return nil
}

func (l *SQLiteInteractionLog) Close() error {
	return l.db.Close()
}

func (l *SQLiteInteractionLog) query(ctx context.Context, q string, args ...any) ([]Interaction, error) {
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query interactions: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var in Interaction
		var ts int64
		if err := rows.Scan(&in.ID, &ts, &in.Username, &in.Input, &in.Reply, &in.AgentStatement, &in.Age); err != nil {
			return nil, fmt.Errorf("storage: scan interaction: %w", err)
		}
		in.Timestamp = time.Unix(0, ts)
		out = append(out, in)
	}
	return out, rows.Err()
}
