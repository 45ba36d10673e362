package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"fsindex/internal/entry"
	"fsindex/internal/filetypes"
)

const entryColumns = `id, name, path, parent_path, type, mime_type, is_dir, size,
	created_at, modified_at, accessed_at, attributes, stable_id, indexed_at`

// scanEntry scans one row in entryColumns order.
func scanEntry(scanner interface{ Scan(...interface{}) error }) (entry.Entry, error) {
	var e entry.Entry
	var parent sql.NullString
	var mimeType sql.NullString
	var isDir int
	var createdAt, modifiedAt, accessedAt, indexedAt int64
	var attributes int64
	var stableID int64

	err := scanner.Scan(
		&e.ID, &e.Name, &e.Path, &parent, &e.Type, &mimeType, &isDir, &e.Size,
		&createdAt, &modifiedAt, &accessedAt, &attributes, &stableID, &indexedAt,
	)
	if err != nil {
		return e, err
	}

	if parent.Valid {
		e.ParentPath = parent.String
	} else {
		// NULL parent marks the root; IsRoot keys off ParentPath == Path.
		e.ParentPath = e.Path
	}
	if mimeType.Valid {
		e.MimeType = mimeType.String
	}
	e.IsDir = isDir != 0
	if createdAt > 0 {
		e.CreatedAt = time.Unix(createdAt, 0)
	}
	e.ModifiedAt = time.Unix(modifiedAt, 0)
	if accessedAt > 0 {
		e.AccessedAt = time.Unix(accessedAt, 0)
	}
	e.Attributes = uint32(attributes)
	e.StableID = uint64(stableID)
	e.IndexedAt = time.Unix(indexedAt, 0)

	return e, nil
}

// Get returns the entry with the given canonical path, or ErrNotFound.
func (s *Store) Get(ctx context.Context, path string) (*entry.Entry, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM entries WHERE path = ?", entryColumns), path)

	e, scanErr := scanEntry(row)
	if errors.Is(scanErr, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if scanErr != nil {
		err = scanErr
		return nil, scanErr
	}
	return &e, nil
}

// ListChildren returns one page of the direct children of opts.Parent,
// directories first, then sorted by the requested column.
func (s *Store) ListChildren(ctx context.Context, opts ListOptions) (*Listing, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_children", start, err) }()

	normalizePaging(&opts.Page, &opts.PageSize, 100, 500)

	countQuery := "SELECT COUNT(*) FROM entries WHERE parent_path = ?"
	countArgs := []interface{}{opts.Parent}
	if opts.Category != "" {
		// Directories always pass the filter so navigation keeps working.
		countQuery += " AND (type = ? OR type = ?)"
		countArgs = append(countArgs, string(filetypes.CategoryDirectory), string(opts.Category))
	}

	s.mu.RLock()
	var totalItems int
	err = s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&totalItems)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("count query failed: %w", err)
	}

	totalPages := pageCount(totalItems, opts.PageSize)
	offset := (opts.Page - 1) * opts.PageSize

	selectQuery := fmt.Sprintf(
		"SELECT %s FROM entries WHERE parent_path = ?", entryColumns)
	selectArgs := []interface{}{opts.Parent}
	if opts.Category != "" {
		selectQuery += " AND (type = ? OR type = ?)"
		selectArgs = append(selectArgs, string(filetypes.CategoryDirectory), string(opts.Category))
	}
	selectQuery += " ORDER BY is_dir DESC, " + orderClause(opts.SortField, opts.SortOrder)
	selectQuery += " LIMIT ? OFFSET ?"
	selectArgs = append(selectArgs, opts.PageSize, offset)

	items, err := s.queryEntries(ctx, selectQuery, selectArgs...)
	if err != nil {
		return nil, err
	}

	return &Listing{
		Path:       opts.Parent,
		Items:      items,
		TotalItems: totalItems,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalPages: totalPages,
		HasMore:    opts.Page*opts.PageSize < totalItems,
	}, nil
}

// Search performs a substring match on entry names, optionally scoped to a
// subtree (recursive) or to a directory's immediate children.
func (s *Store) Search(ctx context.Context, opts SearchOptions) (*SearchResult, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("search", start, err) }()

	if opts.Term == "" {
		return &SearchResult{Items: []entry.Entry{}}, nil
	}
	normalizePaging(&opts.Page, &opts.PageSize, 50, 500)

	where := `name LIKE ? ESCAPE '\'`
	args := []interface{}{"%" + escapeLike(opts.Term) + "%"}

	if opts.Recursive {
		if opts.Scope != "" {
			where += ` AND path LIKE ? ESCAPE '\'`
			args = append(args, escapeLike(opts.Scope)+"/%")
		}
	} else {
		where += " AND parent_path = ?"
		args = append(args, opts.Scope)
	}

	if opts.Category != "" {
		where += " AND type = ?"
		args = append(args, string(opts.Category))
	}

	s.mu.RLock()
	var totalItems int
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries WHERE "+where, args...).Scan(&totalItems)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("search count failed: %w", err)
	}

	totalPages := pageCount(totalItems, opts.PageSize)
	offset := (opts.Page - 1) * opts.PageSize

	query := fmt.Sprintf("SELECT %s FROM entries WHERE %s ORDER BY is_dir DESC, %s LIMIT ? OFFSET ?",
		entryColumns, where, orderClause(opts.SortField, opts.SortOrder))
	args = append(args, opts.PageSize, offset)

	items, err := s.queryEntries(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &SearchResult{
		Items:      items,
		Term:       opts.Term,
		TotalItems: totalItems,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalPages: totalPages,
		HasMore:    opts.Page*opts.PageSize < totalItems,
	}, nil
}

// MediaOptions selects a recursive category listing for gallery clients.
type MediaOptions struct {
	Scope     string // subtree to list under; "" = whole index
	Category  filetypes.Category
	SortField SortField
	SortOrder SortOrder
	Page      int
	PageSize  int
}

// ListMedia returns every file of one category under a subtree, paginated.
// Unlike Search it needs no term and never returns directories.
func (s *Store) ListMedia(ctx context.Context, opts MediaOptions) (*SearchResult, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_media", start, err) }()

	normalizePaging(&opts.Page, &opts.PageSize, 100, 500)

	where := "is_dir = 0 AND type = ?"
	args := []interface{}{string(opts.Category)}
	if opts.Scope != "" {
		where += ` AND path LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(opts.Scope)+"/%")
	}

	s.mu.RLock()
	var totalItems int
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries WHERE "+where, args...).Scan(&totalItems)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("media count failed: %w", err)
	}

	totalPages := pageCount(totalItems, opts.PageSize)
	offset := (opts.Page - 1) * opts.PageSize

	query := fmt.Sprintf("SELECT %s FROM entries WHERE %s ORDER BY %s LIMIT ? OFFSET ?",
		entryColumns, where, orderClause(opts.SortField, opts.SortOrder))
	args = append(args, opts.PageSize, offset)

	items, err := s.queryEntries(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &SearchResult{
		Items:      items,
		TotalItems: totalItems,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalPages: totalPages,
		HasMore:    opts.Page*opts.PageSize < totalItems,
	}, nil
}

// CoverFor returns the canonical path of the first image child of dirPath,
// used by clients as a folder cover. Returns "" when the directory holds no
// images.
func (s *Store) CoverFor(ctx context.Context, dirPath string) (string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("cover_for", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var path string
	err = s.db.QueryRowContext(ctx, `
		SELECT path FROM entries
		WHERE parent_path = ? AND type = ?
		ORDER BY name COLLATE NOCASE
		LIMIT 1
	`, dirPath, string(filetypes.CategoryImage)).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

// Random returns one random entry matching the category filter, optionally
// restricted to a subtree.
func (s *Store) Random(ctx context.Context, scope string, category filetypes.Category) (*entry.Entry, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("random", start, err) }()

	query := fmt.Sprintf("SELECT %s FROM entries WHERE is_dir = 0", entryColumns)
	var args []interface{}
	if category != "" {
		query += " AND type = ?"
		args = append(args, string(category))
	}
	if scope != "" {
		query += ` AND path LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(scope)+"/%")
	}
	query += " ORDER BY RANDOM() LIMIT 1"

	s.mu.RLock()
	row := s.db.QueryRowContext(ctx, query, args...)
	e, scanErr := scanEntry(row)
	s.mu.RUnlock()

	if errors.Is(scanErr, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if scanErr != nil {
		err = scanErr
		return nil, scanErr
	}
	return &e, nil
}

// ChildRef is a lightweight child reference used by reconciliation scans.
type ChildRef struct {
	Path  string
	Name  string
	IsDir bool
}

// ChildPaths returns every direct child of parent, unpaginated. Used by the
// monitor to diff a directory's indexed children against the filesystem.
func (s *Store) ChildPaths(ctx context.Context, parent string) ([]ChildRef, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("child_paths", start, err) }()

	s.mu.RLock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT path, name, is_dir FROM entries WHERE parent_path = ?", parent)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []ChildRef
	for rows.Next() {
		var ref ChildRef
		var isDir int
		if err = rows.Scan(&ref.Path, &ref.Name, &isDir); err != nil {
			return nil, err
		}
		ref.IsDir = isDir != 0
		refs = append(refs, ref)
	}
	err = rows.Err()
	return refs, err
}

// Count returns the total number of indexed entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&count)
	return count, err
}

// CalculateStats computes index content statistics.
func (s *Store) CalculateStats(ctx context.Context) (Stats, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("stats", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Stats

	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM entries", &stats.TotalEntries},
		{"SELECT COUNT(*) FROM entries WHERE is_dir = 0", &stats.TotalFiles},
		{"SELECT COUNT(*) FROM entries WHERE is_dir = 1", &stats.TotalDirs},
		{"SELECT COUNT(*) FROM entries WHERE type = 'image'", &stats.TotalImages},
		{"SELECT COUNT(*) FROM entries WHERE type = 'video'", &stats.TotalVideos},
		{"SELECT COUNT(*) FROM entries WHERE type = 'audio'", &stats.TotalAudio},
	}

	for _, q := range queries {
		if err = s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

// queryEntries runs a query returning entryColumns rows.
func (s *Store) queryEntries(ctx context.Context, query string, args ...interface{}) ([]entry.Entry, error) {
	s.mu.RLock()
	rows, err := s.db.QueryContext(ctx, query, args...)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("select query failed: %w", err)
	}
	defer rows.Close()

	var items []entry.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return items, nil
}

func orderClause(field SortField, order SortOrder) string {
	column := "name COLLATE NOCASE"
	switch field {
	case SortByDate:
		column = "modified_at"
	case SortBySize:
		column = "size"
	case SortByType:
		column = "type"
	}

	dir := "ASC"
	if order == SortDesc {
		dir = "DESC"
	}
	return column + " " + dir
}

func normalizePaging(page, pageSize *int, defaultSize, maxSize int) {
	if *page < 1 {
		*page = 1
	}
	if *pageSize < 1 {
		*pageSize = defaultSize
	}
	if *pageSize > maxSize {
		*pageSize = maxSize
	}
}

func pageCount(totalItems, pageSize int) int {
	pages := int(math.Ceil(float64(totalItems) / float64(pageSize)))
	if pages < 1 {
		pages = 1
	}
	return pages
}
