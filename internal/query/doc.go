// Package query is the read side of the index: directory browsing with
// folder covers, scoped search, media listings, random pick, and status
// reporting. It never mutates the store and runs concurrently with the
// write path.
package query
