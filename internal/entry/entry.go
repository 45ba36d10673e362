package entry

import (
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"fsindex/internal/filetypes"
)

// Entry is one indexed filesystem object (file or directory) with cached
// metadata. Paths are canonical: forward-slash separated and, in relative
// path mode, relative to the indexed root. The root itself is stored with
// canonical path "" (relative mode) and ParentPath equal to its own Path,
// which the store persists as a NULL parent.
type Entry struct {
	ID         int64               `json:"id,omitempty"`
	Name       string              `json:"name"`
	Path       string              `json:"path"`
	ParentPath string              `json:"parentPath"`
	Type       filetypes.Category  `json:"type"`
	MimeType   string              `json:"mimeType,omitempty"`
	IsDir      bool                `json:"isDir"`
	Size       int64               `json:"size"`
	CreatedAt  time.Time           `json:"createdAt,omitempty"`
	ModifiedAt time.Time           `json:"modifiedAt"`
	AccessedAt time.Time           `json:"accessedAt,omitempty"`
	Attributes uint32              `json:"-"`
	StableID   uint64              `json:"-"`
	IndexedAt  time.Time           `json:"indexedAt,omitempty"`
}

// IsRoot reports whether the entry is the indexed root. The root is the only
// entry whose parent path equals its own path.
func (e *Entry) IsRoot() bool {
	return e.ParentPath == e.Path
}

// Builder turns stat results into Entries with canonical paths.
// Prefix is "" for relative path mode, or the slash-normalized absolute root
// path for absolute mode.
type Builder struct {
	Prefix string
}

// Canonical converts a root-relative OS path into a canonical path.
// rel may be "." for the root itself.
func (b Builder) Canonical(rel string) string {
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == "" {
		return b.Prefix
	}
	if b.Prefix == "" {
		return rel
	}
	return b.Prefix + "/" + rel
}

// ParentOf returns the canonical parent path of the canonical path built from
// rel. The root's parent is the root itself.
func (b Builder) ParentOf(rel string) string {
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == "" {
		return b.Prefix
	}
	return b.Canonical(path.Dir(rel))
}

// FromFileInfo builds an Entry from a stat result. rel is the path relative
// to the indexed root in OS separators ("." for the root itself).
// Classification is an extension-table lookup; file contents are never read.
func (b Builder) FromFileInfo(rel string, info os.FileInfo) Entry {
	e := Entry{
		Name:       info.Name(),
		Path:       b.Canonical(rel),
		ParentPath: b.ParentOf(rel),
		IsDir:      info.IsDir(),
		ModifiedAt: info.ModTime(),
		Attributes: uint32(info.Mode()),
	}

	if info.IsDir() {
		e.Type = filetypes.CategoryDirectory
		e.Size = 0
	} else {
		ext := strings.ToLower(filepath.Ext(info.Name()))
		e.Type = filetypes.Classify(ext)
		e.MimeType = filetypes.MimeType(ext)
		e.Size = info.Size()
	}

	// Platform-native extras; absent values stay zero and are harmless.
	fillPlatform(&e, info)

	return e
}
