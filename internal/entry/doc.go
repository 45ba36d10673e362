// Package entry defines the indexed entry model and the metadata extractor
// that builds entries from stat results. Extraction is pure and safe to run
// from any number of crawler workers concurrently.
package entry
