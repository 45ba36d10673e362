package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"fsindex/internal/entry"
	"fsindex/internal/filetypes"
	"fsindex/internal/pipeline"
	"fsindex/internal/query"
	"fsindex/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()

	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	pipe := pipeline.New(st, pipeline.Config{})
	ctx := context.Background()

	mk := func(path, parent, name string, isDir bool, typ filetypes.Category) {
		e := entry.Entry{
			Name:       name,
			Path:       path,
			ParentPath: parent,
			IsDir:      isDir,
			Type:       typ,
			ModifiedAt: time.Now(),
		}
		if err := pipe.Upsert(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	mk("", "", "root", true, filetypes.CategoryDirectory)
	mk("pics", "", "pics", true, filetypes.CategoryDirectory)
	mk("pics/a.jpg", "pics", "a.jpg", false, filetypes.CategoryImage)
	pipe.Close()

	return New(query.New(st, nil), Config{}), st
}

func get(t *testing.T, srv *Server, url string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestBrowseEndpoint(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/api/browse?path=")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var dir struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
		TotalItems int `json:"totalItems"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &dir); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if dir.TotalItems != 2 {
		t.Errorf("TotalItems = %d, want 2", dir.TotalItems)
	}
}

func TestSearchEndpoint(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/api/search?q=jpg")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var result struct {
		TotalItems int `json:"totalItems"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.TotalItems != 1 {
		t.Errorf("TotalItems = %d, want 1", result.TotalItems)
	}
}

func TestSearchMissingTerm(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	if rec := get(t, srv, "/api/search"); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestEntryEndpoint(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/api/entry?path=pics/a.jpg")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	if rec := get(t, srv, "/api/entry?path=missing"); rec.Code != http.StatusNotFound {
		t.Errorf("missing entry status = %d, want 404", rec.Code)
	}
}

func TestRandomEndpoint(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/api/random?type=image")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	if rec := get(t, srv, "/api/random?type=video"); rec.Code != http.StatusNotFound {
		t.Errorf("no-match status = %d, want 404", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var status struct {
		TotalEntries int `json:"totalEntries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.TotalEntries != 3 {
		t.Errorf("TotalEntries = %d, want 3", status.TotalEntries)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()
	srv, st := newTestServer(t)
	ctx := context.Background()

	if rec := get(t, srv, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", rec.Code)
	}

	// No completion marker yet: not ready.
	if rec := get(t, srv, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before build = %d, want 503", rec.Code)
	}

	if err := st.SetLastBuilt(ctx, time.Now()); err != nil {
		t.Fatal(err)
	}
	if rec := get(t, srv, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("readyz after build = %d, want 200", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/status", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", rec.Code)
	}
}
