// Package protocol provides the client and message types for talking to a
// running aiwords server over its websocket using JSON frames.
package protocol

// Commands understood by the server.
const (
	CmdStart     = "start"
	CmdStop      = "stop"
	CmdStatus    = "status"
	CmdSubscribe = "subscribe"
)

// Event names streamed after subscribe.
const (
	EventStatus = "status"
	EventBoard  = "board"
	EventLevel  = "level"
)

// Command is sent from a client to the server.
type Command struct {
	Cmd    string   `json:"cmd"`
	Events []string `json:"events,omitempty"`
}

// Response is returned by the server after processing a command.
type Response struct {
	OK         bool     `json:"ok"`
	SessionID  string   `json:"sessionId,omitempty"`
	Recording  *bool    `json:"recording,omitempty"`
	Processing *bool    `json:"processing,omitempty"`
	Board      []string `json:"board,omitempty"`
	Notice     string   `json:"notice,omitempty"`
	Status     string   `json:"status,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Event is streamed from the server to subscribed clients.
type Event struct {
	Event      string   `json:"event"`
	SessionID  string   `json:"sessionId,omitempty"`
	Board      []string `json:"board,omitempty"`
	Notice     string   `json:"notice,omitempty"`
	Status     string   `json:"status,omitempty"`
	Level      *float64 `json:"level,omitempty"`
	Message    string   `json:"message,omitempty"`
	Recording  *bool    `json:"recording,omitempty"`
	Processing *bool    `json:"processing,omitempty"`
}

// Wants reports whether a subscribe command asked for the named event.
// An empty filter selects every event.
func (c Command) Wants(event string) bool {
	if len(c.Events) == 0 {
		return true
	}
	for _, e := range c.Events {
		if e == event {
			return true
		}
	}
	return false
}

// BoolPtr returns a pointer to a bool value.
func BoolPtr(b bool) *bool {
	return &b
}
