package protocol

import (
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// DefaultPath is the websocket endpoint served by aiwords.
const DefaultPath = "/ws"

// Client communicates with an aiwords server over a websocket.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// URL builds the websocket address for a host:port.
func URL(addr string) string {
	u := url.URL{Scheme: "ws", Host: addr, Path: DefaultPath}
	return u.String()
}

// Connect dials the server websocket at rawURL.
func Connect(rawURL string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to server: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close shuts down the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

// SendCommand sends a command and reads one response frame.
func (c *Client) SendCommand(cmd Command) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.WriteJSON(cmd); err != nil {
		return Response{}, fmt.Errorf("write command: %w", err)
	}

	var resp Response
	if err := c.conn.ReadJSON(&resp); err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

// ReadEvent reads the next event frame. Blocks until data arrives.
// After subscribing, use this in a loop to receive events.
func (c *Client) ReadEvent() (Event, error) {
	var ev Event
	if err := c.conn.ReadJSON(&ev); err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			return Event{}, fmt.Errorf("connection closed: %w", err)
		}
		return Event{}, fmt.Errorf("read event: %w", err)
	}
	return ev, nil
}
