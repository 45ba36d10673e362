// Package store persists the index in SQLite: one flat entries table keyed
// by canonical path and a key/value metadata table carrying the build
// generation state. Mutations flow exclusively through the batch pipeline's
// single writer; reads run concurrently against committed snapshots.
package store
