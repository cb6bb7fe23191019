package pipeline

import "github.com/hergott/ai-words-assistant/internal/slotting"

// Status values shown to the user.
const (
	StatusReady      = "ready"
	StatusRecording  = "recording"
	StatusProcessing = "processing"
)

// State is an immutable snapshot of the coordinator.
type State struct {
	SessionID  string
	Recording  bool
	Processing bool
	Board      slotting.Board
	Notice     string
	Status     string
}

// EventKind identifies what changed.
type EventKind string

const (
	EventStatus EventKind = "status"
	EventBoard  EventKind = "board"
	EventLevel  EventKind = "level"
)

// Event is delivered to subscribers.
type Event struct {
	Kind  EventKind
	State State
	Level float64
	Err   error
}

// Subscribe returns a channel of events and a function that cancels the
// subscription. A subscriber that falls more than buf events behind misses
// events instead of blocking the pipeline. The channel is closed on Shutdown
// or cancel.
func (c *Coordinator) Subscribe(buf int) (<-chan Event, func()) {
	if buf < 1 {
		buf = 1
	}
	ch := make(chan Event, buf)

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	return ch, func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

func (c *Coordinator) publish(ev Event) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
