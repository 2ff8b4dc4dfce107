package websocket

import (
	"encoding/json"
	"fmt"
)

// Message types pushed to the SPA
const (
	TypeInvoicePaid     = "invoice.paid"
	TypeAppStateChanged = "appstate.changed"
	TypePing            = "ping"
	TypePong            = "pong"
	TypeError           = "error"
)

// Message is the envelope for every frame in both directions
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMessage marshals payload into a message envelope
func NewMessage(messageType string, payload interface{}) (*Message, error) {
	msg := &Message{Type: messageType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		msg.Data = data
	}
	return msg, nil
}

func (m *Message) encode() ([]byte, error) {
	return json.Marshal(m)
}
