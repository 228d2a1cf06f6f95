// Package chatclient joins a chat room over a Channel, emits text and image
// messages and renders inbound events through a View.
//
// Every handler, Session change and View call runs on the goroutine that
// executes Run. Public methods only enqueue work for that loop, so they are
// safe to call from any goroutine.
package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"roomchat/internal/media"
	"roomchat/internal/types"

	"github.com/rs/zerolog/log"
)

var ErrEmptyRoom = errors.New("room is required")

// EncodeFunc turns the image at path into a data URL. It runs off the event
// loop.
type EncodeFunc func(ctx context.Context, path string) (string, error)

// ImageFile is a user's image selection.
type ImageFile struct {
	Path string
}

func (f *ImageFile) Name() string {
	return filepath.Base(f.Path)
}

type Client struct {
	room    string
	channel Channel
	view    View
	encode  EncodeFunc

	queue chan func()
	done  chan struct{}

	// loop-owned state
	ctx        context.Context
	session    Session
	previewGen uint64
}

type Option func(*Client)

// WithEncoder replaces media.EncodeFile.
func WithEncoder(fn EncodeFunc) Option {
	return func(c *Client) { c.encode = fn }
}

// WithQueueSize sets the event loop buffer. The default is 64.
func WithQueueSize(n int) Option {
	return func(c *Client) { c.queue = make(chan func(), n) }
}

// NewClient registers the inbound handlers on ch. Run must be called for any
// of them, or any public method, to take effect.
func NewClient(room string, ch Channel, view View, opts ...Option) (*Client, error) {
	if strings.TrimSpace(room) == "" {
		return nil, ErrEmptyRoom
	}
	c := &Client{
		room:    room,
		channel: ch,
		view:    view,
		encode:  media.EncodeFile,
		queue:   make(chan func(), 64),
		done:    make(chan struct{}),
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}

	ch.On(types.EventJoined, c.deferred(c.onJoined))
	ch.On(types.EventMessage, c.deferred(c.onMessage))
	ch.On(types.EventStatus, c.deferred(c.onStatus))
	ch.On(types.EventError, c.deferred(c.onError))
	return c, nil
}

func (c *Client) Room() string {
	return c.room
}

// Run processes queued work until ctx is done. It must be called once.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.done)
	c.ctx = ctx
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-c.queue:
			fn()
		}
	}
}

func (c *Client) post(fn func()) {
	select {
	case c.queue <- fn:
	case <-c.done:
	}
}

func (c *Client) deferred(h func(json.RawMessage)) Handler {
	return func(data json.RawMessage) {
		c.post(func() { h(data) })
	}
}

// Join asks the server to add this participant to the room.
func (c *Client) Join() {
	c.post(c.join)
}

// SendMessage emits the trimmed text and the image, if any, as independent
// messages. The image is encoded asynchronously, so it may reach the server
// before or after the text.
func (c *Client) SendMessage(text string, image *ImageFile) {
	c.post(func() { c.sendMessage(text, image) })
}

// SelectImage reacts to a change of the image selection. A nil image hides
// the preview.
func (c *Client) SelectImage(image *ImageFile) {
	c.post(func() { c.selectImage(image) })
}

// RemoveImage drops the pending selection. It has no effect on images
// already being sent.
func (c *Client) RemoveImage() {
	c.post(c.removeImage)
}

func (c *Client) join() {
	c.session = Session{RoomID: c.room}
	if err := c.channel.Emit(types.EventJoin, types.JoinRequest{Room: c.room}); err != nil {
		log.Warn().Err(err).Msgf("[CLIENT] Join emit for room %q failed", c.room)
	}
}

func (c *Client) sendMessage(text string, image *ImageFile) {
	text = strings.TrimSpace(text)
	if text == "" && image == nil {
		return
	}

	if image != nil {
		c.encodeAsync(image, func(dataURL string) {
			c.emitMessage("", dataURL)
		})
		c.previewGen++
		c.view.ClearImage()
		c.view.HidePreview()
	}

	if text != "" {
		c.emitMessage(text, "")
		c.view.ClearText()
	}
}

func (c *Client) emitMessage(text, image string) {
	msg := types.OutboundMessage{Room: c.room, Message: text, Image: image}
	if err := c.channel.Emit(types.EventMessage, msg); err != nil {
		log.Warn().Err(err).Msg("[CLIENT] Message emit failed")
	}
}

func (c *Client) selectImage(image *ImageFile) {
	c.previewGen++
	if image == nil {
		c.view.HidePreview()
		return
	}
	gen := c.previewGen
	c.encodeAsync(image, func(dataURL string) {
		if gen != c.previewGen {
			return
		}
		c.view.ShowPreview(dataURL)
	})
}

func (c *Client) removeImage() {
	c.previewGen++
	c.view.ClearImage()
	c.view.HidePreview()
}

// encodeAsync encodes image off the loop and runs done back on the loop.
func (c *Client) encodeAsync(image *ImageFile, done func(dataURL string)) {
	ctx := c.ctx
	go func() {
		dataURL, err := c.encode(ctx, image.Path)
		c.post(func() {
			if err != nil {
				log.Warn().Err(err).Msgf("[CLIENT] Could not encode %s", image.Path)
				c.view.Alert(fmt.Sprintf("Could not read image %s.", image.Name()))
				return
			}
			done(dataURL)
		})
	}()
}

func (c *Client) onJoined(data json.RawMessage) {
	var ack types.Joined
	if err := json.Unmarshal(data, &ack); err != nil {
		log.Warn().Err(err).Msg("[CLIENT] Malformed joined event")
		return
	}
	c.session.SetParticipant(ack.SID)
	log.Debug().Msgf("[CLIENT] Joined room %q as %s", c.room, ack.SID)
}

func (c *Client) onMessage(data json.RawMessage) {
	var msg types.InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Err(err).Msg("[CLIENT] Malformed message event")
		return
	}
	c.view.AppendEntry(c.messageEntry(msg))
	c.view.ScrollToLatest()
}

func (c *Client) messageEntry(msg types.InboundMessage) Entry {
	entry := Entry{Kind: EntryMessage, Direction: DirectionReceived}
	if c.session.Owns(msg.SenderSID) {
		entry.Direction = DirectionSent
	}
	if msg.Message != "" {
		entry.Parts = append(entry.Parts, Part{Kind: PartText, Value: msg.Message})
	}
	if msg.Image != "" {
		entry.Parts = append(entry.Parts, Part{Kind: PartImage, Value: msg.Image})
	}
	if msg.Timestamp != "" {
		entry.Parts = append(entry.Parts, Part{Kind: PartTimestamp, Value: msg.Timestamp})
	}
	return entry
}

func (c *Client) onStatus(data json.RawMessage) {
	var status types.StatusEvent
	if err := json.Unmarshal(data, &status); err != nil {
		log.Warn().Err(err).Msg("[CLIENT] Malformed status event")
		return
	}
	c.view.AppendEntry(Entry{Kind: EntryStatus, Parts: []Part{{Kind: PartText, Value: status.Msg}}})
	c.view.ScrollToLatest()
}

func (c *Client) onError(data json.RawMessage) {
	var e types.ErrorEvent
	if err := json.Unmarshal(data, &e); err != nil {
		log.Warn().Err(err).Msg("[CLIENT] Malformed error event")
		return
	}
	c.view.Alert(e.Msg)
}
