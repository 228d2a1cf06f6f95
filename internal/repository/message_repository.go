package repository

import (
	"context"
	"time"

	"roomchat/internal/models"
)

type MessageRepo interface {
	Save(ctx context.Context, message *models.Message) error
	// FetchSince returns the room's messages created at or after since,
	// oldest first.
	FetchSince(ctx context.Context, roomID string, since time.Time) ([]*models.Message, error)
	// DeleteBefore removes messages created before cutoff and returns the
	// non-empty image URLs they referenced.
	DeleteBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}
