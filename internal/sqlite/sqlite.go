// Package sqlite is the embedded single-file backend over modernc.org/sqlite.
// Vectors are stored JSON-encoded and scored in-process; the embedding
// dimension is pinned in a meta table at first open and validated after.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/doxalabs/doxa/internal/domain"
)

// ErrNotFound aliases the shared sentinel so errors.Is works uniformly
// across backends.
var ErrNotFound = domain.ErrNotFound

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS memories (
	id              TEXT PRIMARY KEY,
	agent_id        TEXT NOT NULL,
	content         TEXT NOT NULL,
	category        TEXT NOT NULL DEFAULT '{}',
	metadata        TEXT NOT NULL DEFAULT '{}',
	created_at      INTEGER NOT NULL,
	last_accessed   INTEGER NOT NULL,
	relevance_score REAL,
	version         INTEGER NOT NULL DEFAULT 1,
	access_count    INTEGER NOT NULL DEFAULT 0,
	embedding       TEXT,
	embedding_norm  REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_memories_agent ON memories (agent_id, created_at DESC);

CREATE TABLE IF NOT EXISTS beliefs (
	id                  TEXT PRIMARY KEY,
	agent_id            TEXT NOT NULL,
	statement           TEXT NOT NULL,
	confidence          REAL NOT NULL,
	category            TEXT NOT NULL DEFAULT '',
	evidence_memory_ids TEXT NOT NULL DEFAULT '[]',
	tags                TEXT NOT NULL DEFAULT '[]',
	reinforcement_count INTEGER NOT NULL DEFAULT 0,
	created_at          INTEGER NOT NULL,
	last_updated        INTEGER NOT NULL,
	active              INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_beliefs_agent ON beliefs (agent_id, active);

CREATE TABLE IF NOT EXISTS belief_conflicts (
	id                    TEXT PRIMARY KEY,
	agent_id              TEXT NOT NULL,
	belief_id             TEXT NOT NULL,
	conflicting_belief_id TEXT,
	memory_id             TEXT,
	detected_at           INTEGER NOT NULL,
	resolved              INTEGER NOT NULL DEFAULT 0,
	resolved_at           INTEGER,
	resolution            TEXT NOT NULL DEFAULT '',
	resolution_details    TEXT NOT NULL DEFAULT '',
	severity              REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_conflicts_agent ON belief_conflicts (agent_id, resolved);

CREATE TABLE IF NOT EXISTS belief_relationships (
	id                 TEXT PRIMARY KEY,
	agent_id           TEXT NOT NULL,
	source_belief_id   TEXT NOT NULL,
	target_belief_id   TEXT NOT NULL,
	type               TEXT NOT NULL,
	strength           REAL NOT NULL,
	metadata           TEXT NOT NULL DEFAULT '{}',
	effective_from     INTEGER NOT NULL,
	effective_until    INTEGER,
	deprecation_reason TEXT NOT NULL DEFAULT '',
	active             INTEGER NOT NULL DEFAULT 1,
	created_at         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_relationships_agent ON belief_relationships (agent_id, active);
CREATE INDEX IF NOT EXISTS idx_relationships_source ON belief_relationships (source_belief_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON belief_relationships (target_belief_id);
`

// DB wraps the sqlite handle shared by the capability stores.
type DB struct {
	sql *sql.DB
}

// Open creates or opens the database file, applies the schema, and pins the
// embedding dimension.
func Open(path string, dimension int) (*DB, error) {
	handle, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent writers.
	handle.SetMaxOpenConns(1)

	if _, err := handle.Exec(schema); err != nil {
		handle.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	db := &DB{sql: handle}
	if err := db.pinDimension(dimension); err != nil {
		handle.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() error { return db.sql.Close() }

// Ping reports whether the underlying handle is still usable.
func (db *DB) Ping(ctx context.Context) error { return db.sql.PingContext(ctx) }

// pinDimension records the embedding dimension on first open and rejects a
// mismatch after: stored vectors are unusable under a different dimension.
func (db *DB) pinDimension(want int) error {
	var stored string
	err := db.sql.QueryRow(`SELECT value FROM meta WHERE key = 'embedding_dimension'`).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		_, err := db.sql.Exec(
			`INSERT INTO meta (key, value) VALUES ('embedding_dimension', ?)`,
			fmt.Sprintf("%d", want))
		return err
	}
	if err != nil {
		return fmt.Errorf("sqlite: read embedding dimension: %w", err)
	}
	if stored != fmt.Sprintf("%d", want) {
		return fmt.Errorf("sqlite: database pinned to embedding dimension %s, config wants %d", stored, want)
	}
	return nil
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

func toUnixNano(t time.Time) int64 { return t.UnixNano() }

func fromUnixNano(n int64) time.Time { return time.Unix(0, n) }

func toNullableNano(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	n := t.UnixNano()
	return &n
}

func fromNullableNano(n *int64) *time.Time {
	if n == nil {
		return nil
	}
	t := time.Unix(0, *n)
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
