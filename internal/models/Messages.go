package models

import (
	"time"

	"github.com/google/uuid"
)

// TimestampLayout is how message times travel on the wire.
const TimestampLayout = time.DateTime

type Message struct {
	ID        uuid.UUID `json:"id"`
	RoomID    string    `json:"room_id"`
	SenderSID string    `json:"sender_sid"`
	Content   string    `json:"content"`
	ImageURL  string    `json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
}

func (m *Message) FormattedTime() string {
	return m.CreatedAt.UTC().Format(TimestampLayout)
}
