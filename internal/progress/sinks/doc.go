// Package sinks contains progress.Sink implementations: a zap log sink and a
// Prometheus sink.
package sinks
