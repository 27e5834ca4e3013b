// Package progress carries run and item events from the mirroring engine to
// pluggable sinks. A Hub batches events on a background goroutine so the crawl
// loop never waits on logging or metrics.
package progress
