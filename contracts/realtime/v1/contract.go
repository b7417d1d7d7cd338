// Package v1 defines the huddle realtime protocol v1 contract.
//
// It is shared between the server and clients so the wire format stays
// authoritative in one place. Every event name maps to exactly one payload
// struct below.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Subprotocol is the websocket subprotocol negotiated during the handshake.
const Subprotocol = "huddle.realtime.v1"

// Type constants (wire-stable).
const (
	// TypeJoinRoom subscribes the connection to a chat room (client -> server). No ack.
	TypeJoinRoom = "join_room"

	// TypeSendMessage submits a message (client -> server). Always answered by exactly one TypeAck.
	TypeSendMessage = "send_message"

	// TypeAck answers a TypeSendMessage; ReplyTo carries the request envelope id (server -> client).
	TypeAck = "ack"

	// TypeNewMessage broadcasts a persisted message to a chat room (server -> clients).
	TypeNewMessage = "new_message"

	// TypeNewChat notifies a participant's private channel about a new chat (server -> client).
	TypeNewChat = "new_chat"

	// TypeError reports a malformed envelope or policy violation (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	ReplyTo string          `json:"reply_to,omitempty"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeJoinRoom, TypeSendMessage:
		// Client requests must carry an id so acks can be correlated.
		if strings.TrimSpace(e.ID) == "" {
			return errors.New("missing field: id")
		}
		if len(e.Payload) == 0 {
			return errors.New("missing field: payload")
		}
		return nil
	case TypeAck, TypeNewMessage, TypeNewChat, TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// IsClientType reports whether typ may be sent by a client.
func IsClientType(typ string) bool {
	return typ == TypeJoinRoom || typ == TypeSendMessage
}

// New builds an envelope with payload marshaled to JSON.
func New(typ, id string, payload any, ts time.Time) (Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, err
		}
		raw = b
	}
	return Envelope{
		V:       Version,
		Type:    typ,
		ID:      id,
		TS:      ts,
		Payload: raw,
	}, nil
}
