// Package realtime is the client side of the backend's realtime channel:
// one websocket connection per authenticated session, carrying JSON event
// envelopes pushed by the server.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event names (wire-stable).
const (
	// EventOnlineUsers is a full presence snapshot (server -> client).
	EventOnlineUsers = "getOnlineUsers"
	// EventNewMessage announces a message delivered to this user (server -> client).
	EventNewMessage = "newMessage"
)

// Envelope is the canonical wire wrapper for inbound events.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Validate performs structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.Event) == "" {
		return errors.New("missing field: event")
	}
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %q: missing payload", e.Event)
	}
	return nil
}

// OnlineUsersPayload is the presence snapshot: the complete set of online
// user ids. It replaces any previous snapshot wholesale.
type OnlineUsersPayload []int64

// Sender is the projection of the message author embedded in a message.
type Sender struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Message is an inbound chat message record.
type Message struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"senderId"`
	ReceiverID int64     `json:"receiverId"`
	Sender     Sender    `json:"sender"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}
