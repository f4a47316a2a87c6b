// Package replication makes a storage engine's log available to, and
// reachable from, other replicas of the same store. It moves raw log
// records between peers and knows nothing about the graph entities the
// records carry.
package replication

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"

	"git.canoozie.net/riddling/polygraph/pkg/storage"
)

// Protocol errors
var (
	ErrDiscoveryKeyMismatch = errors.New("peer serves a different store")
	ErrUnexpectedMessage    = errors.New("unexpected protocol message")
)

// messageType identifies a protocol frame.
type messageType uint8

const (
	// messageHello opens a session: each side announces its replica
	// identity and the discovery key of the store it serves.
	messageHello messageType = 1
	// messageRequest asks the peer for every record not covered by the
	// sender's version map (the sparse pull).
	messageRequest messageType = 2
	// messageRecord carries a single log record.
	messageRecord messageType = 3
	// messageDone marks the end of the records answering a request.
	messageDone messageType = 4
)

// message is a single CBOR-encoded protocol frame. Fields are populated
// according to Type.
type message struct {
	Type         messageType       `json:"type"`
	DiscoveryKey string            `json:"discovery_key,omitempty"`
	ReplicaID    string            `json:"replica_id,omitempty"`
	Versions     map[string]uint64 `json:"versions,omitempty"`
	Record       *storage.Record   `json:"record,omitempty"`
}

// writeMessage encodes and sends a frame on the connection.
func writeMessage(conn *websocket.Conn, msg message) error {
	data, err := cbor.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

// readMessage receives and decodes a frame from the connection.
func readMessage(conn *websocket.Conn) (message, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return message{}, err
	}

	var msg message
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return message{}, fmt.Errorf("failed to decode message: %w", err)
	}
	return msg, nil
}
