// Package metrics defines the Prometheus collectors used across the engine.
package metrics
