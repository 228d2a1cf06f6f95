package chat

import (
	"sync"
	"sync/atomic"
	"time"

	"roomchat/internal/models"
	"roomchat/internal/repository"
	"roomchat/internal/types"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const replayWait = time.Second

// JoinRequest asks the hub to add a client to a room and replay History to it.
type JoinRequest struct {
	Client  *Client
	Room    string
	History []*models.Message
}

// RoomMessage is an encoded envelope addressed to every member of Room.
type RoomMessage struct {
	Room    string
	Payload []byte
}

type Hub struct {
	// rooms and members are owned by Run.
	rooms   map[string]map[*Client]struct{}
	members map[*Client]struct{}

	Register   chan *Client
	Unregister chan *Client
	Join       chan *JoinRequest
	Broadcast  chan *RoomMessage
	Quit       chan struct{}

	Repo      repository.MessageRepo
	UploadDir string
	Retention time.Duration

	clientCount atomic.Int64
	quitOnce    sync.Once
}

type Client struct {
	Conn *websocket.Conn
	SID  string
	Send chan []byte
	Hub  *Hub

	rooms map[string]struct{}
	done  chan struct{}
	once  sync.Once
}

func NewHub(repo repository.MessageRepo, uploadDir string, retention time.Duration) *Hub {
	log.Info().Msg("[HUB] Initializing new Hub instance...")
	return &Hub{
		rooms:      make(map[string]map[*Client]struct{}),
		members:    make(map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Join:       make(chan *JoinRequest),
		Broadcast:  make(chan *RoomMessage, 256),
		Quit:       make(chan struct{}),
		Repo:       repo,
		UploadDir:  uploadDir,
		Retention:  retention,
	}
}

func NewClient(h *Hub, conn *websocket.Conn, sid string) *Client {
	return &Client{
		Conn:  conn,
		SID:   sid,
		Send:  make(chan []byte, 256),
		Hub:   h,
		rooms: make(map[string]struct{}),
		done:  make(chan struct{}),
	}
}

// ClientCount is safe to call from any goroutine.
func (h *Hub) ClientCount() int {
	return int(h.clientCount.Load())
}

// Close stops Run and disconnects every client. It may be called repeatedly.
func (h *Hub) Close() {
	h.quitOnce.Do(func() { close(h.Quit) })
}

func (h *Hub) cleanupClient(c *Client) {
	c.once.Do(func() {
		if _, ok := h.members[c]; !ok {
			return
		}
		log.Debug().Msgf("[HUB] Cleaning up resources for client: %s", c.SID)
		delete(h.members, c)
		for room := range c.rooms {
			if members, ok := h.rooms[room]; ok {
				delete(members, c)
				if len(members) == 0 {
					delete(h.rooms, room)
				}
			}
		}
		close(c.done)
		c.Conn.Close()
		h.clientCount.Store(int64(len(h.members)))
		log.Info().Msgf("[HUB] Session closed for %s. Active clients remaining: %d", c.SID, len(h.members))
	})
}

// deliver queues payload on the client or evicts it when its buffer is full.
func (h *Hub) deliver(c *Client, payload []byte) {
	select {
	case c.Send <- payload:
	default:
		log.Warn().Msgf("[HUB] WARNING: Client %s buffer full. Evicting slow consumer.", c.SID)
		h.cleanupClient(c)
	}
}

func (h *Hub) deliverEvent(c *Client, event string, payload any) {
	raw, err := types.Encode(event, payload)
	if err != nil {
		log.Error().Err(err).Msgf("[HUB] Failed to encode %s for %s", event, c.SID)
		return
	}
	h.deliver(c, raw)
}

func (h *Hub) broadcastRoom(room string, payload []byte) {
	for c := range h.rooms[room] {
		h.deliver(c, payload)
	}
}

func (h *Hub) join(req *JoinRequest) {
	c := req.Client
	if _, ok := h.members[c]; !ok {
		log.Debug().Msgf("[HUB] Ignoring join from departed client %s", c.SID)
		return
	}

	members, ok := h.rooms[req.Room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[req.Room] = members
	}
	members[c] = struct{}{}
	c.rooms[req.Room] = struct{}{}
	log.Info().Msgf("[HUB] %s joined room %q (%d members)", c.SID, req.Room, len(members))

	h.deliverEvent(c, types.EventJoined, types.Joined{SID: c.SID})

	status, err := types.Encode(types.EventStatus, types.StatusEvent{Msg: types.MsgUserEntered, SID: c.SID})
	if err == nil {
		h.broadcastRoom(req.Room, status)
	}

	if len(req.History) > 0 {
		log.Debug().Msgf("[HUB] Replaying %d history messages to %s", len(req.History), c.SID)
		go replay(c, req.History)
	}
}

// replay streams history to c off the hub loop, so a long retention window
// never overflows the send buffer. It gives up when c leaves or stops reading.
func replay(c *Client, history []*models.Message) {
	for _, m := range history {
		payload, err := types.Encode(types.EventMessage, ToInbound(m))
		if err != nil {
			log.Error().Err(err).Msgf("[HUB] Failed to encode history for %s", c.SID)
			continue
		}
		select {
		case c.Send <- payload:
		case <-c.done:
			return
		case <-time.After(replayWait):
			log.Warn().Msgf("[HUB] History replay to %s timed out", c.SID)
			return
		}
	}
}

func (h *Hub) Run() {
	log.Info().Msg("[HUB] Main loop started. Listening for events...")
	for {
		select {
		case <-h.Quit:
			log.Info().Msg("[HUB] Quit signal received. Shutting down all client connections...")
			for c := range h.members {
				h.cleanupClient(c)
			}
			return

		case c := <-h.Register:
			h.members[c] = struct{}{}
			h.clientCount.Store(int64(len(h.members)))
			log.Info().Msgf("[HUB] Successfully registered %s. Total active: %d", c.SID, len(h.members))

		case c := <-h.Unregister:
			h.cleanupClient(c)

		case req := <-h.Join:
			h.join(req)

		case msg := <-h.Broadcast:
			log.Debug().Msgf("[HUB] Broadcasting to room %q (%d members)", msg.Room, len(h.rooms[msg.Room]))
			h.broadcastRoom(msg.Room, msg.Payload)
		}
	}
}

// ToInbound converts a stored message to its broadcast form.
func ToInbound(m *models.Message) types.InboundMessage {
	return types.InboundMessage{
		SenderSID: m.SenderSID,
		Message:   m.Content,
		Image:     m.ImageURL,
		Timestamp: m.FormattedTime(),
	}
}
