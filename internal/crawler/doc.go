// Package crawler walks a directory subtree with a bounded worker pool,
// feeding extracted entries to the batch pipeline. Ownership of each
// directory is claimed exactly once off a shared work queue, so no entry is
// ever emitted twice even with workers racing over sibling subtrees.
package crawler
