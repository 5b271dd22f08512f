package kv

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
const CurrentSchemaVersion = 1

// SQLiteStore persists items in a single SQLite table with secondary
// indexes on (user, workspace, key) and update time.
type SQLiteStore struct {
	db *sql.DB
	// writes are serialized; WAL lets readers proceed concurrently
	mu  sync.Mutex
	now func() time.Time
}

// OpenSQLite opens (or creates) baseDir/pilot.db.
func OpenSQLite(baseDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(baseDir, "pilot.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	_ = os.Chmod(dbPath, 0600)

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("failed to get user_version: %w", err)
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS kv_items (
		  user_id      TEXT NOT NULL,
		  workspace_id TEXT NOT NULL DEFAULT '',
		  thread_id    TEXT NOT NULL DEFAULT '',
		  run_id       TEXT NOT NULL DEFAULT '',
		  key          TEXT NOT NULL,
		  value        BLOB NOT NULL,
		  metadata     TEXT,
		  created_at   INTEGER NOT NULL,
		  updated_at   INTEGER NOT NULL,
		  PRIMARY KEY (user_id, workspace_id, thread_id, run_id, key)
		);

		CREATE INDEX IF NOT EXISTS idx_kv_workspace_key
		ON kv_items(user_id, workspace_id, key);

		CREATE INDEX IF NOT EXISTS idx_kv_updated
		ON kv_items(updated_at);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", 1)); err != nil {
			return fmt.Errorf("failed to set user_version: %w", err)
		}
	}
	return nil
}

// Put upserts value under (ns, key), keeping the original creation time.
func (s *SQLiteStore) Put(ctx context.Context, ns Namespace, key string, value []byte, metadata map[string]string) error {
	if err := ns.validate(); err != nil {
		return err
	}
	var meta sql.NullString
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		meta = sql.NullString{String: string(b), Valid: true}
	}
	now := s.now().UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_items (user_id, workspace_id, thread_id, run_id, key, value, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, workspace_id, thread_id, run_id, key)
		DO UPDATE SET value = excluded.value, metadata = excluded.metadata, updated_at = excluded.updated_at`,
		ns.UserID, ns.WorkspaceID, ns.ThreadID, ns.RunID, key, value, meta, now, now)
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", ns, key, err)
	}
	return nil
}

const selectColumns = `SELECT user_id, workspace_id, thread_id, run_id, key, value, metadata, created_at, updated_at FROM kv_items`

// Get returns the item or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, ns Namespace, key string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+`
		WHERE user_id = ? AND workspace_id = ? AND thread_id = ? AND run_id = ? AND key = ?`,
		ns.UserID, ns.WorkspaceID, ns.ThreadID, ns.RunID, key)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", ns, key, err)
	}
	return it, nil
}

// Search pushes namespace, key prefix and time filters into SQL and applies
// the full glob in Go.
func (s *SQLiteStore) Search(ctx context.Context, q Query) ([]*Item, error) {
	matcher, err := newKeyMatcher(q.KeyPattern)
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		where = append(where, clause)
		args = append(args, arg)
	}
	if q.Namespace.UserID != "" {
		add("user_id = ?", q.Namespace.UserID)
	}
	if q.Namespace.WorkspaceID != "" {
		add("workspace_id = ?", q.Namespace.WorkspaceID)
	}
	if q.Namespace.ThreadID != "" {
		add("thread_id = ?", q.Namespace.ThreadID)
	}
	if q.Namespace.RunID != "" {
		add("run_id = ?", q.Namespace.RunID)
	}
	if matcher.prefix != "" {
		add(`key LIKE ? ESCAPE '\'`, escapeLike(matcher.prefix)+"%")
	}
	if !q.Since.IsZero() {
		add("updated_at >= ?", q.Since.UnixNano())
	}
	if !q.Until.IsZero() {
		add("updated_at <= ?", q.Until.UnixNano())
	}

	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY key, user_id, workspace_id, thread_id, run_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var out []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		if !matcher.Match(it.Key) {
			continue
		}
		out = append(out, it)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, rows.Err()
}

// Delete removes (ns, key). Deleting a missing key is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, ns Namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM kv_items
		WHERE user_id = ? AND workspace_id = ? AND thread_id = ? AND run_id = ? AND key = ?`,
		ns.UserID, ns.WorkspaceID, ns.ThreadID, ns.RunID, key)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", ns, key, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(sc scanner) (*Item, error) {
	var (
		it               Item
		meta             sql.NullString
		created, updated int64
	)
	if err := sc.Scan(&it.Namespace.UserID, &it.Namespace.WorkspaceID, &it.Namespace.ThreadID,
		&it.Namespace.RunID, &it.Key, &it.Value, &meta, &created, &updated); err != nil {
		return nil, err
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &it.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	it.CreatedAt = time.Unix(0, created)
	it.UpdatedAt = time.Unix(0, updated)
	return &it, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
