package tasks

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"roomchat/internal/db"
	"roomchat/internal/media"
	"roomchat/internal/models"
	"roomchat/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMessageCleaner_SweepRemovesExpiredMessagesAndImages(t *testing.T) {
	dir := t.TempDir()
	uploads := filepath.Join(dir, "uploads")
	require.NoError(t, os.MkdirAll(uploads, 0o755))

	sqlDB, err := db.OpenSQLite(filepath.Join(dir, "chat.db"))
	require.NoError(t, err)
	defer sqlDB.Close()
	repo := repository.NewSQLiteMessagesRepo(sqlDB)
	ctx := context.Background()
	require.NoError(t, repo.EnsureSchema(ctx))

	oldName, err := media.SaveUpload(uploads, "png", []byte("old"))
	require.NoError(t, err)
	newName, err := media.SaveUpload(uploads, "png", []byte("new"))
	require.NoError(t, err)

	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	save := func(url string, at time.Time) {
		require.NoError(t, repo.Save(ctx, &models.Message{
			ID: uuid.New(), RoomID: "room-42", SenderSID: "abc", ImageURL: url, CreatedAt: at,
		}))
	}
	save(media.UploadURL(oldName), now.Add(-2*time.Minute))
	save("/uploads/already-gone.png", now.Add(-3*time.Minute))
	save(media.UploadURL(newName), now.Add(-5*time.Second))

	cleaner := NewMessageCleaner(repo, uploads, time.Minute)
	cleaner.now = func() time.Time { return now }
	require.NoError(t, cleaner.Sweep(ctx))

	_, err = os.Stat(filepath.Join(uploads, oldName))
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(uploads, newName))
	require.NoError(t, err)

	left, err := repo.FetchSince(ctx, "room-42", time.Time{})
	require.NoError(t, err)
	require.Len(t, left, 1)
}

func TestMessageCleaner_StartRejectsBadSchedule(t *testing.T) {
	cleaner := NewMessageCleaner(nil, t.TempDir(), time.Minute)
	_, err := cleaner.Start("not a schedule")
	require.Error(t, err)

	c, err := cleaner.Start("@every 1h")
	require.NoError(t, err)
	c.Stop()
}
