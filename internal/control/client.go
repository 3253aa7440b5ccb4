package control

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
)

// Client is a connected control-socket session.
type Client struct {
	conn net.Conn
}

// Dial connects to a running daemon's control socket.
func Dial(sockPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", sockPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connecting to control socket %q: %w", sockPath, err)
	}
	return &Client{conn: conn}, nil
}

// Close sends a Close message and closes the underlying connection.
func (c *Client) Close() error {
	_ = WriteMessage(c.conn, Message{Type: TypeClose})
	return c.conn.Close()
}

// Ping round-trips a Ping/Pong exchange, the basis of `precached status`'s
// liveness check.
func (c *Client) Ping() error {
	_, err := c.request(TypePing, nil)
	return err
}

// Request sends a request message of type t with the given JSON-encodable
// payload and decodes the response payload into out (pass a pointer, or
// nil to discard the response body).
func (c *Client) Request(t MessageType, payload any, out any) error {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request payload: %w", err)
		}
		raw = data
	}

	resp, err := c.request(t, raw)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Payload, out); err != nil {
		return fmt.Errorf("decoding response payload: %w", err)
	}
	return nil
}

func (c *Client) request(t MessageType, payload json.RawMessage) (Message, error) {
	reqID := uuid.NewString()
	if err := WriteMessage(c.conn, Message{Type: t, RequestID: reqID, Payload: payload}); err != nil {
		return Message{}, err
	}
	resp, err := ReadMessage(c.conn)
	if err != nil {
		return Message{}, fmt.Errorf("reading control response: %w", err)
	}
	return resp, nil
}
