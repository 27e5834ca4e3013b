package progress

import "context"

// Sink consumes batches of events. Consume is called from the Hub goroutine
// only; Close is called once after the final batch.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. Hub satisfies it.
type Emitter interface {
	Emit(evt Event)
}
