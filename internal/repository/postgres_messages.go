package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"roomchat/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS messages (
		id          UUID PRIMARY KEY,
		room_id     TEXT NOT NULL,
		sender_sid  TEXT NOT NULL,
		content     TEXT NOT NULL DEFAULT '',
		image_url   TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS messages_room_created_idx ON messages (room_id, created_at);
`

type PostgresMessagesRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresMessagesRepo(pool *pgxpool.Pool) *PostgresMessagesRepo {
	return &PostgresMessagesRepo{
		pool: pool,
	}
}

func (r *PostgresMessagesRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create messages schema: %w", err)
	}
	return nil
}

func (r *PostgresMessagesRepo) Save(ctx context.Context, m *models.Message) error {
	query := `
        INSERT INTO messages (id, room_id, sender_sid, content, image_url, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
    `

	_, err := r.pool.Exec(ctx, query,
		m.ID,
		m.RoomID,
		m.SenderSID,
		m.Content,
		m.ImageURL,
		m.CreatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			log.Error().Msgf("[REPO ERROR] Postgres error saving message %s: code %s, %s", m.ID, pgErr.Code, pgErr.Message)
		} else {
			log.Error().Err(err).Msgf("[REPO ERROR] Failed to save message %s from %s", m.ID, m.SenderSID)
		}
		return fmt.Errorf("save message: %w", err)
	}

	return nil
}

func (r *PostgresMessagesRepo) FetchSince(ctx context.Context, roomID string, since time.Time) ([]*models.Message, error) {
	query := `
        SELECT id, room_id, sender_sid, content, image_url, created_at
        FROM messages
        WHERE room_id = $1
          AND created_at >= $2
        ORDER BY created_at ASC
    `

	rows, err := r.pool.Query(ctx, query, roomID, since)
	if err != nil {
		log.Error().Err(err).Msgf("[REPO ERROR] Fetch failed for room %s", roomID)
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m := &models.Message{}
		err := rows.Scan(
			&m.ID,
			&m.RoomID,
			&m.SenderSID,
			&m.Content,
			&m.ImageURL,
			&m.CreatedAt,
		)
		if err != nil {
			log.Error().Err(err).Msg("[REPO ERROR] Scan failed")
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (r *PostgresMessagesRepo) DeleteBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `
		DELETE FROM messages
		WHERE created_at < $1
		RETURNING image_url`

	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("[REPO ERROR] Delete of expired messages failed")
		return nil, fmt.Errorf("delete messages: %w", err)
	}
	defer rows.Close()

	var images []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan image url: %w", err)
		}
		if url != "" {
			images = append(images, url)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("delete messages: %w", err)
	}

	if tag := rows.CommandTag(); tag.RowsAffected() == 0 {
		log.Debug().Msg("[REPO INFO] No expired messages to delete")
	}

	return images, nil
}
