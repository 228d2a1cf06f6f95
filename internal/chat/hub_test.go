package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"roomchat/internal/media"
	"roomchat/internal/models"
	"roomchat/internal/types"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu       sync.Mutex
	messages []*models.Message
	saveErr  error
}

func (r *memoryRepo) Save(_ context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.messages = append(r.messages, m)
	return nil
}

func (r *memoryRepo) FetchSince(_ context.Context, roomID string, since time.Time) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Message
	for _, m := range r.messages {
		if m.RoomID == roomID && !m.CreatedAt.Before(since) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memoryRepo) DeleteBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*models.Message
	var images []string
	for _, m := range r.messages {
		if m.CreatedAt.Before(cutoff) {
			if m.ImageURL != "" {
				images = append(images, m.ImageURL)
			}
			continue
		}
		kept = append(kept, m)
	}
	r.messages = kept
	return images, nil
}

func (r *memoryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

type testServer struct {
	hub     *Hub
	repo    *memoryRepo
	url     string
	httpURL string
}

func startServer(t *testing.T) *testServer {
	t.Helper()
	return startServerWithRepo(t, &memoryRepo{})
}

func startServerWithRepo(t *testing.T, repo *memoryRepo) *testServer {
	t.Helper()
	h := NewHub(repo, t.TempDir(), time.Minute)
	go h.Run()

	srv := httptest.NewServer(NewMux(h, NewUpgrader([]string{"*"})))
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return &testServer{
		hub:     h,
		repo:    repo,
		url:     "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		httpURL: srv.URL,
	}
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	raw, err := types.Encode(event, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func next(t *testing.T, conn *websocket.Conn, event string, v any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var env types.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Equal(t, event, env.Event, "payload: %s", env.Data)
	if v != nil {
		require.NoError(t, json.Unmarshal(env.Data, v))
	}
}

func join(t *testing.T, conn *websocket.Conn, room string) string {
	t.Helper()
	emit(t, conn, types.EventJoin, types.JoinRequest{Room: room})
	var joined types.Joined
	next(t, conn, types.EventJoined, &joined)
	require.NotEmpty(t, joined.SID)

	var status types.StatusEvent
	next(t, conn, types.EventStatus, &status)
	require.Equal(t, types.MsgUserEntered, status.Msg)
	require.Equal(t, joined.SID, status.SID)
	return joined.SID
}

func TestHub_JoinAcknowledgesAndAnnounces(t *testing.T) {
	s := startServer(t)
	alice := s.dial(t)
	bob := s.dial(t)

	join(t, alice, "room-42")
	bobSID := join(t, bob, "room-42")

	var status types.StatusEvent
	next(t, alice, types.EventStatus, &status)
	require.Equal(t, bobSID, status.SID)
	require.Equal(t, 2, s.hub.ClientCount())
}

func TestHub_MessageIsBroadcastToRoomOnly(t *testing.T) {
	s := startServer(t)
	alice := s.dial(t)
	bob := s.dial(t)
	carol := s.dial(t)

	aliceSID := join(t, alice, "room-42")
	join(t, bob, "room-42")
	next(t, alice, types.EventStatus, nil)
	join(t, carol, "elsewhere")

	emit(t, alice, types.EventMessage, types.OutboundMessage{Room: "room-42", Message: "hi"})

	for _, conn := range []*websocket.Conn{alice, bob} {
		var msg types.InboundMessage
		next(t, conn, types.EventMessage, &msg)
		require.Equal(t, aliceSID, msg.SenderSID)
		require.Equal(t, "hi", msg.Message)
		require.Empty(t, msg.Image)
		_, err := time.Parse(models.TimestampLayout, msg.Timestamp)
		require.NoError(t, err)
	}
	require.Equal(t, 1, s.repo.count())

	require.NoError(t, carol.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := carol.ReadMessage()
	require.Error(t, err)
}

func TestHub_JoinReplaysRecentHistory(t *testing.T) {
	s := startServer(t)
	now := time.Now().UTC()
	require.NoError(t, s.repo.Save(context.Background(), &models.Message{
		ID: uuid.New(), RoomID: "room-42", SenderSID: "old", Content: "stale", CreatedAt: now.Add(-2 * time.Minute),
	}))
	require.NoError(t, s.repo.Save(context.Background(), &models.Message{
		ID: uuid.New(), RoomID: "room-42", SenderSID: "someone", Content: "fresh", CreatedAt: now.Add(-10 * time.Second),
	}))

	conn := s.dial(t)
	join(t, conn, "room-42")

	var msg types.InboundMessage
	next(t, conn, types.EventMessage, &msg)
	require.Equal(t, "fresh", msg.Message)
	require.Equal(t, "someone", msg.SenderSID)
}

func TestHub_ImageIsStoredAndLinked(t *testing.T) {
	s := startServer(t)
	conn := s.dial(t)
	join(t, conn, "room-42")

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	emit(t, conn, types.EventMessage, types.OutboundMessage{Room: "room-42", Image: media.EncodeBytes(png)})

	var msg types.InboundMessage
	next(t, conn, types.EventMessage, &msg)
	require.Empty(t, msg.Message)
	require.True(t, strings.HasPrefix(msg.Image, media.UploadPrefix), msg.Image)

	data, err := os.ReadFile(media.UploadPath(s.hub.UploadDir, msg.Image))
	require.NoError(t, err)
	require.Equal(t, png, data)

	resp, err := http.Get(s.httpURL + msg.Image)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	served, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, png, served)
}

func TestHub_RejectsBadPayloads(t *testing.T) {
	s := startServer(t)
	conn := s.dial(t)
	join(t, conn, "room-42")

	cases := []struct {
		name string
		msg  types.OutboundMessage
		want string
	}{
		{"unsupported extension", types.OutboundMessage{Room: "room-42", Image: "data:image/bmp;base64,AAAA"}, types.MsgInvalidImage},
		{"not a data url", types.OutboundMessage{Room: "room-42", Image: "garbage"}, types.MsgImageFailed},
		{"empty message", types.OutboundMessage{Room: "room-42"}, types.MsgInvalidRequest},
		{"missing room", types.OutboundMessage{Message: "hi"}, types.MsgInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			emit(t, conn, types.EventMessage, tc.msg)
			var e types.ErrorEvent
			next(t, conn, types.EventError, &e)
			require.Equal(t, tc.want, e.Msg)
		})
	}
	require.Zero(t, s.repo.count())
}

func TestHub_JoinReplaysHistoryLargerThanSendBuffer(t *testing.T) {
	s := startServer(t)
	start := time.Now().UTC().Add(-30 * time.Second)
	const total = 300
	for i := 0; i < total; i++ {
		require.NoError(t, s.repo.Save(context.Background(), &models.Message{
			ID:        uuid.New(),
			RoomID:    "room-42",
			SenderSID: "someone",
			Content:   fmt.Sprintf("msg-%03d", i),
			CreatedAt: start.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	conn := s.dial(t)
	join(t, conn, "room-42")

	for i := 0; i < total; i++ {
		var msg types.InboundMessage
		next(t, conn, types.EventMessage, &msg)
		require.Equal(t, fmt.Sprintf("msg-%03d", i), msg.Message)
	}
	require.Equal(t, 1, s.hub.ClientCount())
}

func TestHub_DisconnectLeavesRoom(t *testing.T) {
	s := startServer(t)
	alice := s.dial(t)
	bob := s.dial(t)

	aliceSID := join(t, alice, "room-42")
	join(t, bob, "room-42")
	next(t, alice, types.EventStatus, nil)

	require.NoError(t, bob.Close())
	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	emit(t, alice, types.EventMessage, types.OutboundMessage{Room: "room-42", Message: "anyone?"})
	var msg types.InboundMessage
	next(t, alice, types.EventMessage, &msg)
	require.Equal(t, aliceSID, msg.SenderSID)
	require.Equal(t, "anyone?", msg.Message)

	carol := s.dial(t)
	join(t, carol, "room-42")
	next(t, alice, types.EventStatus, nil)
	require.Equal(t, 2, s.hub.ClientCount())
}

func TestHub_SaveFailureIsReportedToSender(t *testing.T) {
	s := startServerWithRepo(t, &memoryRepo{saveErr: errors.New("disk full")})
	alice := s.dial(t)
	bob := s.dial(t)
	join(t, alice, "room-42")
	join(t, bob, "room-42")
	next(t, alice, types.EventStatus, nil)

	emit(t, alice, types.EventMessage, types.OutboundMessage{Room: "room-42", Message: "lost"})

	var e types.ErrorEvent
	next(t, alice, types.EventError, &e)
	require.Equal(t, types.MsgSaveFailed, e.Msg)

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := bob.ReadMessage()
	require.Error(t, err)
}

func TestHealthHandler(t *testing.T) {
	s := startServer(t)
	join(t, s.dial(t), "room-42")

	resp, err := http.Get(s.httpURL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body.Status)
	require.Equal(t, 1, body.Clients)
}

func TestUploads_MissingFileIsNotFound(t *testing.T) {
	s := startServer(t)
	resp, err := http.Get(s.httpURL + media.UploadPrefix + "nope.png")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
