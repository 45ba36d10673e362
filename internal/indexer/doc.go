// Package indexer coordinates full index builds: generation boundary,
// configuration drift detection, progress accounting, and the final
// completion marker. Only one build runs at a time.
package indexer
