package chat

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"roomchat/internal/media"
	"roomchat/internal/models"
	"roomchat/internal/types"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 10 * time.Second
	repoWait   = 5 * time.Second
)

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Msgf("[CLIENT] Write to %s failed", c.SID)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.Hub.Unregister <- c:
		case <-c.Hub.Quit:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msgf("[CLIENT] Unexpected close for %s", c.SID)
			}
			break
		}

		var env types.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Debug().Err(err).Msgf("[CLIENT] Dropping malformed frame from %s", c.SID)
			continue
		}

		switch env.Event {
		case types.EventJoin:
			c.handleJoin(env.Data)
		case types.EventMessage:
			c.handleMessage(env.Data)
		default:
			log.Debug().Msgf("[CLIENT] %s: %s %q", c.SID, types.ErrUnknownEvent, env.Event)
		}
	}
}

// sendError answers the sender only. It never blocks the read loop.
func (c *Client) sendError(msg string) {
	raw, err := types.Encode(types.EventError, types.ErrorEvent{Msg: msg})
	if err != nil {
		return
	}
	select {
	case c.Send <- raw:
	case <-c.done:
	default:
		log.Warn().Msgf("[CLIENT] Dropping error for %s, send buffer full", c.SID)
	}
}

func (c *Client) handleJoin(data json.RawMessage) {
	var req types.JoinRequest
	if err := types.Decode(data, &req); err != nil {
		log.Debug().Err(err).Msgf("[CLIENT] Invalid join from %s", c.SID)
		c.sendError(types.MsgInvalidRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), repoWait)
	defer cancel()
	history, err := c.Hub.Repo.FetchSince(ctx, req.Room, time.Now().UTC().Add(-c.Hub.Retention))
	if err != nil {
		log.Error().Err(err).Msgf("[CLIENT] History unavailable for room %q", req.Room)
		history = nil
	}

	select {
	case c.Hub.Join <- &JoinRequest{Client: c, Room: req.Room, History: history}:
	case <-c.Hub.Quit:
	}
}

func (c *Client) handleMessage(data json.RawMessage) {
	var req types.OutboundMessage
	if err := types.Decode(data, &req); err != nil {
		log.Debug().Err(err).Msgf("[CLIENT] Invalid message from %s", c.SID)
		c.sendError(types.MsgInvalidRequest)
		return
	}

	imageURL := ""
	if req.Image != "" {
		url, err := c.storeImage(req.Image)
		if err != nil {
			log.Warn().Err(err).Msgf("[CLIENT] Rejected image from %s", c.SID)
			if errors.Is(err, media.ErrUnsupportedType) {
				c.sendError(types.MsgInvalidImage)
			} else {
				c.sendError(types.MsgImageFailed)
			}
			return
		}
		imageURL = url
	}

	msg := &models.Message{
		ID:        uuid.New(),
		RoomID:    req.Room,
		SenderSID: c.SID,
		Content:   req.Message,
		ImageURL:  imageURL,
		CreatedAt: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), repoWait)
	defer cancel()
	if err := c.Hub.Repo.Save(ctx, msg); err != nil {
		c.sendError(types.MsgSaveFailed)
		return
	}

	payload, err := types.Encode(types.EventMessage, ToInbound(msg))
	if err != nil {
		log.Error().Err(err).Msg("[CLIENT] Failed to encode broadcast")
		return
	}

	select {
	case c.Hub.Broadcast <- &RoomMessage{Room: req.Room, Payload: payload}:
	case <-c.Hub.Quit:
	}
}

func (c *Client) storeImage(dataURL string) (string, error) {
	img, err := media.DecodeImage(dataURL)
	if err != nil {
		return "", err
	}
	name, err := media.SaveUpload(c.Hub.UploadDir, img.Ext, img.Data)
	if err != nil {
		return "", err
	}
	return media.UploadURL(name), nil
}
