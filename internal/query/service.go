package query

import (
	"context"
	"errors"
	"strings"

	"fsindex/internal/entry"
	"fsindex/internal/filetypes"
	"fsindex/internal/indexer"
	"fsindex/internal/logging"
	"fsindex/internal/store"
)

// ErrInvalidRequest marks caller mistakes (bad term, bad category) so
// transports can map them to a 400-class response.
var ErrInvalidRequest = errors.New("invalid request")

// Item is an entry annotated for browsing clients. Cover is the canonical
// path of the directory's first image child, empty for files and coverless
// directories.
type Item struct {
	entry.Entry
	Cover string `json:"cover,omitempty"`
}

// Directory is one page of a browsed directory.
type Directory struct {
	Path       string `json:"path"`
	Items      []Item `json:"items"`
	TotalItems int    `json:"totalItems"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
	TotalPages int    `json:"totalPages"`
	HasMore    bool   `json:"hasMore"`
}

// Status is the externally visible index state. Counts and the progress
// block stay meaningful mid-build.
type Status struct {
	store.Stats
	Progress *indexer.Progress `json:"progress,omitempty"`
}

// Service exposes read-only index operations. The indexer reference is
// optional; without it Status omits live build progress.
type Service struct {
	st  *store.Store
	idx *indexer.Indexer
}

// New creates a query service. idx may be nil.
func New(st *store.Store, idx *indexer.Indexer) *Service {
	return &Service{st: st, idx: idx}
}

// Browse lists the direct children of a directory, directories first, with
// folder covers resolved for directory items.
func (s *Service) Browse(ctx context.Context, opts store.ListOptions) (*Directory, error) {
	if opts.Category != "" && !filetypes.Valid(opts.Category) {
		return nil, errors.Join(ErrInvalidRequest, errors.New("unknown category "+string(opts.Category)))
	}

	listing, err := s.st.ListChildren(ctx, opts)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(listing.Items))
	for _, e := range listing.Items {
		item := Item{Entry: e}
		if e.IsDir {
			cover, err := s.st.CoverFor(ctx, e.Path)
			if err != nil {
				logging.Warn("Cover lookup failed for %s: %v", e.Path, err)
			} else {
				item.Cover = cover
			}
		}
		items = append(items, item)
	}

	return &Directory{
		Path:       listing.Path,
		Items:      items,
		TotalItems: listing.TotalItems,
		Page:       listing.Page,
		PageSize:   listing.PageSize,
		TotalPages: listing.TotalPages,
		HasMore:    listing.HasMore,
	}, nil
}

// Search runs a scoped substring search over entry names.
func (s *Service) Search(ctx context.Context, opts store.SearchOptions) (*store.SearchResult, error) {
	opts.Term = strings.TrimSpace(opts.Term)
	if opts.Term == "" {
		return nil, errors.Join(ErrInvalidRequest, errors.New("search term is required"))
	}
	if opts.Category != "" && !filetypes.Valid(opts.Category) {
		return nil, errors.Join(ErrInvalidRequest, errors.New("unknown category "+string(opts.Category)))
	}
	return s.st.Search(ctx, opts)
}

// Media lists every file of one category under a subtree, for gallery
// clients.
func (s *Service) Media(ctx context.Context, opts store.MediaOptions) (*store.SearchResult, error) {
	if opts.Category == "" || !filetypes.Valid(opts.Category) || opts.Category == filetypes.CategoryDirectory {
		return nil, errors.Join(ErrInvalidRequest, errors.New("a media category is required"))
	}
	return s.st.ListMedia(ctx, opts)
}

// Random picks one random file, optionally restricted by subtree and
// category. Returns store.ErrNotFound when nothing matches.
func (s *Service) Random(ctx context.Context, scope string, category filetypes.Category) (*entry.Entry, error) {
	if category != "" && !filetypes.Valid(category) {
		return nil, errors.Join(ErrInvalidRequest, errors.New("unknown category "+string(category)))
	}
	return s.st.Random(ctx, scope, category)
}

// Get looks up a single entry by canonical path.
func (s *Service) Get(ctx context.Context, path string) (*entry.Entry, error) {
	return s.st.Get(ctx, path)
}

// Status reports index counts, build metadata, and live build progress.
// It never fails on missing metadata: an unbuilt index reports zero counts
// and BuildInProgress derived from the absent completion marker. When an
// indexer is attached, its live state replaces that heuristic.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	stats, err := s.st.CalculateStats(ctx)
	if err != nil {
		return nil, err
	}

	if lastBuilt, err := s.st.LastBuilt(ctx); err == nil {
		stats.LastBuilt = lastBuilt
		stats.BuildInProgress = lastBuilt.IsZero() && stats.TotalEntries > 0
	}
	if root, err := s.st.IndexedRoot(ctx); err == nil {
		stats.IndexedRoot = root
	}
	if mode, err := s.st.PathMode(ctx); err == nil {
		stats.PathMode = mode
	}

	status := &Status{Stats: stats}
	if s.idx != nil {
		// The in-process coordinator knows whether a build is actually
		// running; a partial index left behind by an interrupted run must
		// not read as building forever.
		p := s.idx.Progress()
		status.Progress = &p
		status.BuildInProgress = p.Building
	}
	return status, nil
}

// Ready reports whether a complete index exists, for readiness probes.
func (s *Service) Ready(ctx context.Context) bool {
	lastBuilt, err := s.st.LastBuilt(ctx)
	return err == nil && !lastBuilt.IsZero()
}
