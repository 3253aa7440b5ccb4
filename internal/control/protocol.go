// Package control implements the daemon's control-socket IPC: a
// length-prefixed JSON-framed protocol over a Unix domain socket, used by
// the CLI subcommands to talk to a running daemon.
//
// Grounded on _examples/majorcontext-moat/internal/daemon/server.go and
// client.go for the Server/Client/Registry shape, adapted from their
// HTTP-over-Unix-socket transport to a length-prefixed JSON frame
// transport, since spec.md's closed set of request/response pairs is a
// small fixed RPC vocabulary rather than a REST resource model.
package control

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// MessageType enumerates the closed set of control-socket request/response
// pairs.
type MessageType string

const (
	TypePing    MessageType = "Ping"
	TypePong    MessageType = "Pong"
	TypeConnect MessageType = "Connect"
	TypeConnectedSuccessfully MessageType = "ConnectedSuccessfully"
	TypeClose   MessageType = "Close"

	TypeRequestInternalState MessageType = "RequestInternalState"
	TypeSendInternalState    MessageType = "SendInternalState"

	TypeRequestGlobalStatistics MessageType = "RequestGlobalStatistics"
	TypeSendGlobalStatistics    MessageType = "SendGlobalStatistics"

	TypeRequestTrackedProcesses MessageType = "RequestTrackedProcesses"
	TypeSendTrackedProcesses    MessageType = "SendTrackedProcesses"

	TypeRequestInFlightTracers MessageType = "RequestInFlightTracers"
	TypeSendInFlightTracers    MessageType = "SendInFlightTracers"

	TypeRequestPrefetchStatus MessageType = "RequestPrefetchStatus"
	TypeSendPrefetchStatus    MessageType = "SendPrefetchStatus"

	TypeRequestInternalEvents MessageType = "RequestInternalEvents"
	TypeSendInternalEvents    MessageType = "SendInternalEvents"

	TypeRequestCachedFiles MessageType = "RequestCachedFiles"
	TypeSendCachedFiles    MessageType = "SendCachedFiles"

	TypeRequestStatistics MessageType = "RequestStatistics"
	TypeSendStatistics    MessageType = "SendStatistics"

	TypeDoHousekeeping MessageType = "DoHousekeeping"
	TypeReload         MessageType = "Reload"

	TypeBlacklist   MessageType = "Blacklist"
	TypeBlacklisted MessageType = "Blacklisted"
)

// maxFrameSize bounds a single message, guarding against a malformed or
// adversarial length prefix causing an unbounded allocation.
const maxFrameSize = 16 << 20

// Message is one length-prefixed JSON frame on the control socket.
type Message struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"request_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// WriteMessage frames m as a 4-byte big-endian length prefix followed by
// its JSON encoding.
func WriteMessage(w io.Writer, m Message) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding control message: %w", err)
	}
	if len(data) > maxFrameSize {
		return fmt.Errorf("control message too large: %d bytes", len(data))
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(data)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("writing frame length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing frame payload: %w", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed JSON frame. Unknown message types
// decode successfully (Type is just a string); callers are responsible for
// logging-and-dropping types they don't recognize, per spec.md.
func ReadMessage(r io.Reader) (Message, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return Message{}, err
	}
	size := binary.BigEndian.Uint32(prefix[:])
	if size > maxFrameSize {
		return Message{}, fmt.Errorf("control frame too large: %d bytes", size)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Message{}, fmt.Errorf("reading frame payload: %w", err)
	}
	var m Message
	if err := json.Unmarshal(buf, &m); err != nil {
		return Message{}, fmt.Errorf("decoding control message: %w", err)
	}
	return m, nil
}
