package chatws

import (
	"encoding/json"
	"fmt"
	"time"
)

// Client-initiated actions. The gateway routes on $request.body.action, so
// these double as route keys.
const (
	ActionBroadcast = "broadcast"
	ActionGetUsers  = "getUsers"
)

// Server-initiated frame types.
const (
	FrameMessage      = "message"
	FrameUsers        = "users"
	FramePresence     = "presence"
	FrameAnnouncement = "announcement"
	FrameError        = "error"
)

// Presence events carried by FramePresence.
const (
	PresenceJoined = "joined"
	PresenceLeft   = "left"
)

// Request is a client message received over the WebSocket.
type Request struct {
	Action  string `json:"action"`
	Payload string `json:"payload,omitempty"`
}

// ParseRequest parses a client request from a JSON body.
func ParseRequest(body string) (*Request, error) {
	var req Request
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if req.Action == "" {
		return nil, fmt.Errorf("missing request action")
	}
	return &req, nil
}

// UserEntry is one live connection in a users frame. The response is one
// entry per connection: a user connected from several devices appears once
// per device.
type UserEntry struct {
	Username     string `json:"username"`
	ConnectionID string `json:"connectionId"`
}

// Frame is a server message pushed to a client connection.
type Frame struct {
	Type     string          `json:"type"`
	Sender   string          `json:"sender,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	SentAt   string          `json:"sentAt,omitempty"`
	Users    []UserEntry     `json:"users,omitempty"`
	Username string          `json:"username,omitempty"`
	Event    string          `json:"event,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// ParseFrame parses a server frame from JSON.
func ParseFrame(data []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	if frame.Type == "" {
		return nil, fmt.Errorf("missing frame type")
	}
	return &frame, nil
}

// MessageFrame returns a chat message frame for fanout delivery.
func MessageFrame(sender, payload string, sentAt time.Time) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshalling message payload: %w", err)
	}
	b, err := json.Marshal(Frame{
		Type:    FrameMessage,
		Sender:  sender,
		Payload: encoded,
		SentAt:  sentAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling message frame: %w", err)
	}
	return b, nil
}

// UsersFrame returns a presence listing frame. The users key is always
// present, as an empty array for an empty room; Frame's omitempty would
// elide it, so the frame is marshalled through a dedicated struct.
func UsersFrame(users []UserEntry) ([]byte, error) {
	if users == nil {
		users = []UserEntry{}
	}
	b, err := json.Marshal(struct {
		Type  string      `json:"type"`
		Users []UserEntry `json:"users"`
	}{Type: FrameUsers, Users: users})
	if err != nil {
		return nil, fmt.Errorf("marshalling users frame: %w", err)
	}
	return b, nil
}

// PresenceFrame returns a join/leave notification frame.
func PresenceFrame(username, event string, at time.Time) ([]byte, error) {
	b, err := json.Marshal(Frame{
		Type:     FramePresence,
		Username: username,
		Event:    event,
		SentAt:   at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling presence frame: %w", err)
	}
	return b, nil
}

// AnnouncementFrame returns a server announcement frame.
func AnnouncementFrame(payload json.RawMessage, sentAt time.Time) ([]byte, error) {
	b, err := json.Marshal(Frame{
		Type:    FrameAnnouncement,
		Payload: payload,
		SentAt:  sentAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling announcement frame: %w", err)
	}
	return b, nil
}

// ErrorFrame returns an error frame.
func ErrorFrame(message string) []byte {
	b, _ := json.Marshal(Frame{Type: FrameError, Message: message})
	return b
}
