// Package pipeline implements the bounded producer/consumer queue between
// crawl or monitor producers and the single serialized index writer. Exactly
// one writer goroutine holds write access to the store; everything else
// submits ops and blocks on backpressure when the queue is full.
package pipeline
