package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"roomchat/internal/types"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// echoServer answers every join with a joined event and repeats every other
// frame back unchanged.
func echoServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env types.Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				return
			}
			if env.Event == types.EventJoin {
				raw, _ = types.Encode(types.EventJoined, types.Joined{SID: "abc"})
			}
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSocket_EmitAndDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sock, err := Dial(ctx, echoServer(t))
	require.NoError(t, err)

	joined := make(chan string, 1)
	echoed := make(chan types.OutboundMessage, 1)
	sock.On(types.EventJoined, func(data json.RawMessage) {
		var ack types.Joined
		_ = json.Unmarshal(data, &ack)
		joined <- ack.SID
	})
	sock.On(types.EventMessage, func(data json.RawMessage) {
		var msg types.OutboundMessage
		_ = json.Unmarshal(data, &msg)
		echoed <- msg
	})

	errc := make(chan error, 1)
	go func() { errc <- sock.Run(ctx) }()

	require.NoError(t, sock.Emit(types.EventJoin, types.JoinRequest{Room: "room-42"}))
	require.NoError(t, sock.Emit(types.EventMessage, types.OutboundMessage{Room: "room-42", Message: "hi"}))

	select {
	case sid := <-joined:
		require.Equal(t, "abc", sid)
	case <-time.After(2 * time.Second):
		t.Fatal("joined was not dispatched")
	}
	select {
	case msg := <-echoed:
		require.Equal(t, "hi", msg.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("message was not dispatched")
	}

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	require.ErrorIs(t, sock.Emit(types.EventMessage, types.OutboundMessage{Room: "room-42", Message: "late"}), ErrChannelClosed)
}

func TestSocket_RunReturnsWhenServerGoesAway(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
		conn.Close()
	}))
	defer srv.Close()

	sock, err := Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- sock.Run(context.Background()) }()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	<-sock.Done()
}
