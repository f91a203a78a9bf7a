package events

// Event is anything the ledger engines broadcast to downstream subscribers.
type Event interface {
	EventType() string
}

// Emitter receives events as they are produced. Implementations must not
// block; engines emit synchronously inside state transitions.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event. Engines default to it so event wiring
// stays optional.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(Event) {}

// CollectingEmitter buffers every emitted event in order. Intended for tests
// and for the RPC event log.
type CollectingEmitter struct {
	Events []Event
}

// Emit implements Emitter.
func (c *CollectingEmitter) Emit(evt Event) {
	if c == nil || evt == nil {
		return
	}
	c.Events = append(c.Events, evt)
}

// Reset drops all buffered events.
func (c *CollectingEmitter) Reset() {
	if c == nil {
		return
	}
	c.Events = c.Events[:0]
}
