package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"fsindex/internal/entry"
	"fsindex/internal/logging"
	"fsindex/internal/metrics"
	"fsindex/internal/pipeline"
)

// Default timeout for read operations
const defaultTimeout = 5 * time.Second

// ErrNotFound is returned when a lookup misses.
var ErrNotFound = errors.New("entry not found")

// Store is the persistent index: one entries table keyed by canonical path
// plus a small key/value metadata table. All mutations arrive through
// ApplyBatch, called only by the pipeline's single writer; reads run
// concurrently against committed state.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Open opens (creating if needed) the index database at dbPath.
// The parent directory must already exist and be writable.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	logging.Info("Index database: %s", dbPath)

	// WAL keeps readers unblocked while the writer commits batches;
	// busy_timeout avoids spurious "database is locked" failures.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to index database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}

	if err := s.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after schema failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize index schema: %w", err)
	}

	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		path TEXT NOT NULL UNIQUE,
		parent_path TEXT,
		type TEXT NOT NULL,
		mime_type TEXT,
		is_dir INTEGER NOT NULL DEFAULT 0,
		size INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT 0,
		modified_at INTEGER NOT NULL,
		accessed_at INTEGER NOT NULL DEFAULT 0,
		attributes INTEGER NOT NULL DEFAULT 0,
		stable_id INTEGER NOT NULL DEFAULT 0,
		indexed_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_entries_parent ON entries(parent_path);
	CREATE INDEX IF NOT EXISTS idx_entries_type ON entries(type);
	CREATE INDEX IF NOT EXISTS idx_entries_name ON entries(name COLLATE NOCASE);
	CREATE INDEX IF NOT EXISTS idx_entries_parent_type ON entries(parent_path, type);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ApplyBatch commits a batch of pipeline ops as one transaction, in order.
// Per-op errors roll back the whole batch so a reader never observes a
// partially applied batch.
func (s *Store) ApplyBatch(ctx context.Context, ops []pipeline.Op) error {
	if len(ops) == 0 {
		return nil
	}

	s.mu.Lock()
	txStart := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to begin batch transaction: %w", err)
	}

	for i := range ops {
		op := &ops[i]
		switch op.Kind {
		case pipeline.OpUpsert:
			err = s.upsertTx(ctx, tx, op.Entry)
		case pipeline.OpDelete:
			err = s.deleteExactTx(ctx, tx, op.Path)
		case pipeline.OpDeleteTree:
			err = s.deleteSubtreeTx(ctx, tx, op.Path)
		}
		if err != nil {
			metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(time.Since(txStart).Seconds())
			if rbErr := tx.Rollback(); rbErr != nil {
				return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
			}
			return err
		}
	}

	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(time.Since(txStart).Seconds())
	return tx.Commit()
}

// upsertTx inserts or replaces one entry keyed by canonical path. Re-indexing
// the same path refreshes attributes in place rather than duplicating the row.
func (s *Store) upsertTx(ctx context.Context, tx *sql.Tx, e *entry.Entry) error {
	query := `
	INSERT INTO entries (name, path, parent_path, type, mime_type, is_dir, size,
		created_at, modified_at, accessed_at, attributes, stable_id, indexed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, strftime('%s', 'now'))
	ON CONFLICT(path) DO UPDATE SET
		name = excluded.name,
		parent_path = excluded.parent_path,
		type = excluded.type,
		mime_type = excluded.mime_type,
		is_dir = excluded.is_dir,
		size = excluded.size,
		created_at = excluded.created_at,
		modified_at = excluded.modified_at,
		accessed_at = excluded.accessed_at,
		attributes = excluded.attributes,
		stable_id = excluded.stable_id,
		indexed_at = strftime('%s', 'now')
	`

	// The root row keeps a NULL parent so it never shows up as a child of
	// anything, including itself.
	var parent interface{}
	if !e.IsRoot() {
		parent = e.ParentPath
	}

	_, err := tx.ExecContext(ctx, query,
		e.Name,
		e.Path,
		parent,
		string(e.Type),
		e.MimeType,
		boolToInt(e.IsDir),
		e.Size,
		e.CreatedAt.Unix(),
		e.ModifiedAt.Unix(),
		e.AccessedAt.Unix(),
		e.Attributes,
		int64(e.StableID),
	)
	return err
}

func (s *Store) deleteExactTx(ctx context.Context, tx *sql.Tx, path string) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE path = ?", path)
	return err
}

// deleteSubtreeTx removes the entry at path and every descendant in the same
// statement set, keeping directory closure intact under concurrent reads.
func (s *Store) deleteSubtreeTx(ctx context.Context, tx *sql.Tx, path string) error {
	if path == "" {
		// Subtree delete of the relative-mode root degenerates to a wipe.
		_, err := tx.ExecContext(ctx, "DELETE FROM entries")
		return err
	}
	_, err := tx.ExecContext(ctx,
		`DELETE FROM entries WHERE path = ? OR path LIKE ? ESCAPE '\'`,
		path, escapeLike(path)+"/%",
	)
	return err
}

// Clear wipes all entries and the build-generation metadata keys in one
// transaction. While last_built is absent, readers must treat the index as
// incomplete rather than empty.
func (s *Store) Clear(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("clear", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM entries"); err == nil {
		_, err = tx.ExecContext(ctx,
			"DELETE FROM metadata WHERE key IN (?, ?, ?)",
			MetaLastBuilt, MetaIndexedRoot, MetaPathMode)
	}
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	err = tx.Commit()
	return err
}

// Vacuum reclaims space after large deletes.
func (s *Store) Vacuum() error {
	start := time.Now()
	var err error
	defer func() { recordQuery("vacuum", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	_, err = s.db.ExecContext(ctx, "VACUUM")
	return err
}

// escapeLike escapes LIKE wildcards so canonical paths and search terms are
// matched literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// recordQuery records query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}
