package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"roomchat/internal/media"
	"roomchat/internal/repository"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// MessageCleaner drops messages older than the retention window together
// with their uploaded images.
type MessageCleaner struct {
	repo      repository.MessageRepo
	uploadDir string
	retention time.Duration
	now       func() time.Time
}

func NewMessageCleaner(repo repository.MessageRepo, uploadDir string, retention time.Duration) *MessageCleaner {
	return &MessageCleaner{
		repo:      repo,
		uploadDir: uploadDir,
		retention: retention,
		now:       time.Now,
	}
}

// Sweep runs one cleanup pass. A file that cannot be removed is logged and
// skipped.
func (t *MessageCleaner) Sweep(ctx context.Context) error {
	cutoff := t.now().UTC().Add(-t.retention)

	images, err := t.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete expired messages: %w", err)
	}

	for _, url := range images {
		p := media.UploadPath(t.uploadDir, url)
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Msgf("[WORKER] Error deleting image file %s", p)
		}
	}
	return nil
}

// Start schedules Sweep on spec (cron syntax or "@every 1m"). The caller
// stops the returned scheduler.
func (t *MessageCleaner) Start(spec string) (*cron.Cron, error) {
	c := cron.New()

	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := t.Sweep(ctx); err != nil {
			log.Error().Err(err).Msg("[WORKER] Message cleanup failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule cleanup %q: %w", spec, err)
	}

	c.Start()
	log.Info().Msgf("[WORKER] Message cleanup scheduled (%s, retention %s)", spec, t.retention)
	return c, nil
}
