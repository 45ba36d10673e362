package store

import (
	"time"

	"fsindex/internal/entry"
	"fsindex/internal/filetypes"
)

// SortField selects the secondary sort column; directories always sort
// ahead of files as the primary tie-break.
type SortField string

// SortOrder selects the sort direction.
type SortOrder string

const (
	SortByName SortField = "name"
	SortByDate SortField = "date"
	SortBySize SortField = "size"
	SortByType SortField = "type"

	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListOptions selects and pages the direct children of a directory.
type ListOptions struct {
	Parent    string
	Category  filetypes.Category // "" = all types; directories always pass
	SortField SortField
	SortOrder SortOrder
	Page      int
	PageSize  int
}

// SearchOptions parameterizes a substring search over entry names.
type SearchOptions struct {
	Term      string
	Scope     string // subtree to search under; "" = whole index
	Recursive bool   // false = immediate children of Scope only
	Category  filetypes.Category
	SortField SortField
	SortOrder SortOrder
	Page      int
	PageSize  int
}

// Listing is one page of a directory's children.
type Listing struct {
	Path       string        `json:"path"`
	Items      []entry.Entry `json:"items"`
	TotalItems int           `json:"totalItems"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	TotalPages int           `json:"totalPages"`
	HasMore    bool          `json:"hasMore"`
}

// SearchResult is one page of search matches.
type SearchResult struct {
	Items      []entry.Entry `json:"items"`
	Term       string        `json:"term"`
	TotalItems int           `json:"totalItems"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	TotalPages int           `json:"totalPages"`
	HasMore    bool          `json:"hasMore"`
}

// Stats summarizes index contents.
type Stats struct {
	TotalEntries    int       `json:"totalEntries"`
	TotalFiles      int       `json:"totalFiles"`
	TotalDirs       int       `json:"totalDirs"`
	TotalImages     int       `json:"totalImages"`
	TotalVideos     int       `json:"totalVideos"`
	TotalAudio      int       `json:"totalAudio"`
	LastBuilt       time.Time `json:"lastBuilt,omitempty"`
	IndexedRoot     string    `json:"indexedRoot,omitempty"`
	PathMode        string    `json:"pathMode,omitempty"`
	BuildInProgress bool      `json:"buildInProgress"`
}
