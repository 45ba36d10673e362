// Package server exposes the query layer over HTTP: browse, search, media
// listings, single-entry lookup, random pick, and status, plus health and
// readiness probes. Metrics are served on a separate port so they stay off
// the public surface.
package server
