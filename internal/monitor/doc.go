// Package monitor keeps the index synchronized with live filesystem changes.
// It subscribes to OS change notifications for the indexed subtree, debounces
// and coalesces the raw event stream, classifies each surviving event, and
// applies the reconciling update through the batch pipeline. A periodic
// reconciliation sweep catches changes the notification stream missed.
package monitor
