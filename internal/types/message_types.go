package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Event names carried in Envelope.Event.
const (
	EventJoin    = "join"
	EventJoined  = "joined"
	EventMessage = "message"
	EventStatus  = "status"
	EventError   = "error"
)

// User facing texts sent by the server.
const (
	MsgUserEntered    = "A user has entered the room."
	MsgInvalidImage   = "Invalid image format."
	MsgImageFailed    = "Failed to process image."
	MsgSaveFailed     = "Failed to save message."
	MsgInvalidRequest = "Invalid request."
)

var ErrUnknownEvent = errors.New("unknown event")

var validate = validator.New()

// Envelope is the frame exchanged on the socket in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type JoinRequest struct {
	Room string `json:"room" validate:"required"`
}

type Joined struct {
	SID string `json:"sid"`
}

// OutboundMessage is what a participant emits. Text and image are never both
// empty.
type OutboundMessage struct {
	Room    string `json:"room" validate:"required"`
	Message string `json:"message" validate:"required_without=Image"`
	Image   string `json:"image"`
}

// InboundMessage is what the server broadcasts to a room. Every field except
// the sender is optional.
type InboundMessage struct {
	SenderSID string `json:"sender_sid"`
	Message   string `json:"message,omitempty"`
	Image     string `json:"image,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

type StatusEvent struct {
	Msg string `json:"msg"`
	SID string `json:"sid,omitempty"`
}

type ErrorEvent struct {
	Msg string `json:"msg"`
}

// Encode wraps payload into an Envelope and marshals it.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Decode unmarshals data into v and runs its validate tags.
func Decode(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validate payload: %w", err)
	}
	return nil
}
