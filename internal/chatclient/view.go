package chatclient

// Direction tells whether a message entry was sent by the local participant.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

type EntryKind int

const (
	EntryMessage EntryKind = iota
	EntryStatus
)

type PartKind string

const (
	PartText      PartKind = "text"
	PartImage     PartKind = "image"
	PartTimestamp PartKind = "timestamp"
)

// Part is one optional sub-element of a log entry.
type Part struct {
	Kind  PartKind
	Value string
}

// Entry is appended to the message log. Status entries carry no Direction.
type Entry struct {
	Kind      EntryKind
	Direction Direction
	Parts     []Part
}

// View is the UI surface the client drives. All calls happen on the
// client's event loop goroutine.
type View interface {
	AppendEntry(Entry)
	ScrollToLatest()
	ShowPreview(dataURL string)
	HidePreview()
	// ClearText empties the text input.
	ClearText()
	// ClearImage resets the image selection so the same file can be chosen
	// again.
	ClearImage()
	// Alert shows a blocking notification.
	Alert(text string)
}
