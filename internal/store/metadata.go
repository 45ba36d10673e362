package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Metadata keys. Absence of MetaLastBuilt signals "no complete index" to any
// reader, including one watching a rebuild in progress.
const (
	MetaLastBuilt   = "last_built"
	MetaIndexedRoot = "indexed_root"
	MetaPathMode    = "path_mode"
)

// GetMetadata retrieves a metadata value by key.
// Returns sql.ErrNoRows if the key doesn't exist.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetMetadata sets a metadata key-value pair.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// LastBuilt returns the completion time of the last full build. The zero
// time means no complete index exists (never built, or a build is running).
func (s *Store) LastBuilt(ctx context.Context) (time.Time, error) {
	value, err := s.GetMetadata(ctx, MetaLastBuilt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	if value == "" {
		return time.Time{}, nil
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return timestamp, nil
}

// SetLastBuilt stores the build completion timestamp.
func (s *Store) SetLastBuilt(ctx context.Context, t time.Time) error {
	return s.SetMetadata(ctx, MetaLastBuilt, t.Format(time.RFC3339))
}

// IndexedRoot returns the root path the index was built from, or "" when
// absent.
func (s *Store) IndexedRoot(ctx context.Context) (string, error) {
	value, err := s.GetMetadata(ctx, MetaIndexedRoot)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// PathMode returns the stored path mode, or "" when absent.
func (s *Store) PathMode(ctx context.Context) (string, error) {
	value, err := s.GetMetadata(ctx, MetaPathMode)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}
