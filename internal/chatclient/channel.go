package chatclient

import "encoding/json"

// Handler receives the raw payload of one inbound event.
type Handler func(data json.RawMessage)

// Channel is an already connected bidirectional event channel. Handlers for
// an event are invoked in registration order, one event at a time, in the
// order the channel receives them.
type Channel interface {
	Emit(event string, payload any) error
	On(event string, h Handler)
}
