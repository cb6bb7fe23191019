package app

import "github.com/hergott/ai-words-assistant/internal/protocol"

// ConnectedMsg is sent when both server connections are established.
type ConnectedMsg struct {
	Client   *protocol.Client // for commands (start, stop, status)
	EvClient *protocol.Client // for event subscription
}

// ConnectErrorMsg is sent when the server connection fails.
type ConnectErrorMsg struct {
	Err error
}

// EventMsg wraps a streamed event from the server.
type EventMsg struct {
	Event protocol.Event
}

// EventErrorMsg is sent when the event stream encounters an error.
type EventErrorMsg struct {
	Err error
}

// StatusResponseMsg carries the response to a status or subscribe command.
type StatusResponseMsg struct {
	Response protocol.Response
}

// StartResponseMsg carries the response to a start command.
type StartResponseMsg struct {
	Response protocol.Response
}

// StopResponseMsg carries the response to a stop command.
type StopResponseMsg struct {
	Response protocol.Response
}

// ClearTransientErrorMsg clears a transient error after a timeout.
type ClearTransientErrorMsg struct{}

// ReconnectTickMsg triggers a reconnection attempt.
type ReconnectTickMsg struct{}
