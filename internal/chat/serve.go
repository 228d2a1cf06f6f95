package chat

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || lo.Contains(allowedOrigins, "*") || lo.Contains(allowedOrigins, origin)
		},
	}
}

// ServeWS upgrades the request and attaches a fresh participant to the hub.
func ServeWS(h *Hub, upgrader *websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("[SOCKET] Upgrade error")
			return
		}

		client := NewClient(h, conn, uuid.NewString())

		select {
		case h.Register <- client:
		case <-h.Quit:
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}

func HealthHandler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","clients":%d}`, h.ClientCount())
	}
}

// NewMux wires the websocket endpoint, health check and upload file server.
func NewMux(h *Hub, upgrader *websocket.Upgrader) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ServeWS(h, upgrader))
	mux.HandleFunc("/health", HealthHandler(h))
	mux.Handle("/uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(h.UploadDir))))
	return mux
}
