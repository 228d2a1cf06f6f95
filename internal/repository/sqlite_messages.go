package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"roomchat/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS messages (
		id          TEXT PRIMARY KEY,
		room_id     TEXT NOT NULL,
		sender_sid  TEXT NOT NULL,
		content     TEXT NOT NULL DEFAULT '',
		image_url   TEXT NOT NULL DEFAULT '',
		created_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS messages_room_created_idx ON messages (room_id, created_at);
`

// SQLiteMessagesRepo stores times as unix milliseconds.
type SQLiteMessagesRepo struct {
	db *sql.DB
}

func NewSQLiteMessagesRepo(db *sql.DB) *SQLiteMessagesRepo {
	return &SQLiteMessagesRepo{db: db}
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func (r *SQLiteMessagesRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create messages schema: %w", err)
	}
	return nil
}

func (r *SQLiteMessagesRepo) Save(ctx context.Context, m *models.Message) error {
	query := `
		INSERT INTO messages (id, room_id, sender_sid, content, image_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		m.ID.String(),
		m.RoomID,
		m.SenderSID,
		m.Content,
		m.ImageURL,
		toMillis(m.CreatedAt),
	)
	if err != nil {
		log.Error().Err(err).Msgf("[REPO ERROR] Failed to save message %s from %s", m.ID, m.SenderSID)
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

func (r *SQLiteMessagesRepo) FetchSince(ctx context.Context, roomID string, since time.Time) ([]*models.Message, error) {
	query := `
		SELECT id, room_id, sender_sid, content, image_url, created_at
		FROM messages
		WHERE room_id = ? AND created_at >= ?
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, roomID, toMillis(since))
	if err != nil {
		log.Error().Err(err).Msgf("[REPO ERROR] Fetch failed for room %s", roomID)
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		var (
			id      string
			created int64
		)
		m := &models.Message{}
		if err := rows.Scan(&id, &m.RoomID, &m.SenderSID, &m.Content, &m.ImageURL, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if m.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse message id %q: %w", id, err)
		}
		m.CreatedAt = fromMillis(created)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *SQLiteMessagesRepo) DeleteBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT image_url FROM messages WHERE created_at < ? AND image_url != ''`, toMillis(cutoff))
	if err != nil {
		return nil, fmt.Errorf("select expired images: %w", err)
	}
	var images []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan image url: %w", err)
		}
		images = append(images, url)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select expired images: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE created_at < ?`, toMillis(cutoff))
	if err != nil {
		return nil, fmt.Errorf("delete messages: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		log.Info().Msgf("[REPO] Deleted %d expired messages", n)
	}
	return images, nil
}
