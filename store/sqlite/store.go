// Package sqlite provides a SQLite-backed authoring store.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oriumgames/solo"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Store persists the authoring store in SQLite. It records object ids and
// resolves them to loaded objects through an ObjectResolver, so entries
// survive process restarts while the objects themselves live in content.
type Store struct {
	sqlDB  *sql.DB
	logger *slog.Logger

	mu      sync.RWMutex
	objects solo.ObjectResolver
}

var (
	_ solo.AuthoringStore = (*Store)(nil)
	_ solo.IDStore        = (*Store)(nil)
)

// Open opens a SQLite store and applies the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB, logger: logger}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Bind sets the resolver used to turn stored ids into objects.
func (s *Store) Bind(objects solo.ObjectResolver) {
	s.mu.Lock()
	s.objects = objects
	s.mu.Unlock()
}

// TryGet implements solo.AuthoringStore. Ids that no longer resolve to a
// loaded object read as absent.
func (s *Store) TryGet(key string) (solo.Object, bool) {
	id, ok, err := s.GetID(context.Background(), key)
	if err != nil {
		s.logger.Error("solo: authoring store read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	s.mu.RLock()
	objects := s.objects
	s.mu.RUnlock()
	if objects == nil {
		return nil, false
	}
	obj, ok := objects.Resolve(id)
	if !ok {
		s.logger.Debug("solo: authoring store entry does not resolve", "key", key, "id", id)
	}
	return obj, ok
}

// StoredID implements solo.IDStore.
func (s *Store) StoredID(key string) (string, bool) {
	id, ok, err := s.GetID(context.Background(), key)
	if err != nil {
		s.logger.Error("solo: authoring store read failed", "key", key, "error", err)
		return "", false
	}
	return id, ok
}

// Set implements solo.AuthoringStore.
func (s *Store) Set(key string, obj solo.Object, overwrite bool) error {
	if obj == nil {
		return fmt.Errorf("object is required")
	}
	return s.SetID(context.Background(), key, obj.ObjectID(), overwrite)
}

// Remove implements solo.AuthoringStore.
func (s *Store) Remove(key string) error {
	return s.RemoveID(context.Background(), key)
}

// GetID returns the object id stored under key.
func (s *Store) GetID(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if s == nil || s.sqlDB == nil {
		return "", false, fmt.Errorf("storage is not configured")
	}
	var id string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT object_id FROM config_objects WHERE key = ?`, key,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get config object %q: %w", key, err)
	}
	return id, true, nil
}

// SetID stores id under key. An existing entry is kept unless overwrite is set.
func (s *Store) SetID(ctx context.Context, key, id string, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if key == "" || id == "" {
		return fmt.Errorf("key and object id are required")
	}
	query := `INSERT INTO config_objects (key, object_id, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO NOTHING`
	if overwrite {
		query = `INSERT INTO config_objects (key, object_id, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET object_id = excluded.object_id, updated_at = excluded.updated_at`
	}
	if _, err := s.sqlDB.ExecContext(ctx, query, key, id, time.Now().UTC().UnixMilli()); err != nil {
		return fmt.Errorf("set config object %q: %w", key, err)
	}
	return nil
}

// RemoveID deletes the entry for key.
func (s *Store) RemoveID(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM config_objects WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove config object %q: %w", key, err)
	}
	return nil
}

// Entry is a stored key and object id.
type Entry struct {
	Key       string
	ObjectID  string
	UpdatedAt time.Time
}

// Entries lists all stored entries ordered by key.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT key, object_id, updated_at FROM config_objects ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list config objects: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var updated int64
		if err := rows.Scan(&e.Key, &e.ObjectID, &updated); err != nil {
			return nil, fmt.Errorf("scan config object: %w", err)
		}
		e.UpdatedAt = time.UnixMilli(updated).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list config objects: %w", err)
	}
	return entries, nil
}
