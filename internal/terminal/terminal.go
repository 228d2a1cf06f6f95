// Package terminal is a line oriented front end for chatclient.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"roomchat/internal/chatclient"
	"roomchat/internal/media"

	"github.com/dustin/go-humanize"
	"github.com/gookit/color"
)

const prompt = "> "

var (
	sentStyle     = color.New(color.FgCyan, color.OpBold)
	receivedStyle = color.New(color.FgGreen)
	statusStyle   = color.New(color.FgGray, color.OpItalic)
	alertStyle    = color.New(color.FgWhite, color.BgRed, color.OpBold)
	previewStyle  = color.New(color.FgMagenta)
)

// Actions is what the input loop drives. *chatclient.Client satisfies it.
type Actions interface {
	SendMessage(text string, image *chatclient.ImageFile)
	SelectImage(image *chatclient.ImageFile)
	RemoveImage()
}

// Terminal implements chatclient.View on a writer and reads commands from a
// reader.
type Terminal struct {
	mu         sync.Mutex
	out        io.Writer
	origin     string
	selected   *chatclient.ImageFile
	previewing bool
}

// New returns a Terminal writing to out. Relative image links are resolved
// against origin, e.g. "http://localhost:5001".
func New(out io.Writer, origin string) *Terminal {
	return &Terminal{out: out, origin: strings.TrimRight(origin, "/")}
}

func (t *Terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "\r"+format, args...)
}

func (t *Terminal) AppendEntry(e chatclient.Entry) {
	t.printf("%s\n", t.format(e))
}

func (t *Terminal) format(e chatclient.Entry) string {
	if e.Kind == chatclient.EntryStatus {
		return statusStyle.Sprint("-- " + joinText(e.Parts) + " --")
	}

	var b strings.Builder
	label, style := "them", receivedStyle
	if e.Direction == chatclient.DirectionSent {
		label, style = "me", sentStyle
	}
	b.WriteString(style.Sprint("[" + label + "]"))

	var stamp string
	for _, p := range e.Parts {
		switch p.Kind {
		case chatclient.PartText:
			b.WriteString(" " + p.Value)
		case chatclient.PartImage:
			b.WriteString(" " + t.imageLink(p.Value))
		case chatclient.PartTimestamp:
			stamp = p.Value
		}
	}
	if stamp != "" {
		b.WriteString(statusStyle.Sprint(" (" + stamp + ")"))
	}
	return b.String()
}

func joinText(parts []chatclient.Part) string {
	var texts []string
	for _, p := range parts {
		if p.Kind == chatclient.PartText {
			texts = append(texts, p.Value)
		}
	}
	return strings.Join(texts, " ")
}

func (t *Terminal) imageLink(v string) string {
	switch {
	case strings.HasPrefix(v, "data:"):
		return "[image " + describe(v) + "]"
	case strings.HasPrefix(v, "/"):
		return "[image " + t.origin + v + "]"
	default:
		return "[image " + v + "]"
	}
}

func describe(dataURL string) string {
	u, err := media.DecodeDataURL(dataURL)
	if err != nil {
		return "unreadable"
	}
	return fmt.Sprintf("%s, %s", u.MIME, humanize.Bytes(uint64(len(u.Data))))
}

// ScrollToLatest redraws the prompt under the newest line.
func (t *Terminal) ScrollToLatest() {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprint(t.out, prompt)
}

func (t *Terminal) ShowPreview(dataURL string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.previewing = true
	fmt.Fprintf(t.out, "\r%s\n%s", previewStyle.Sprint("preview: "+describe(dataURL)+" (enter sends, /remove discards)"), prompt)
}

func (t *Terminal) HidePreview() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.previewing {
		return
	}
	t.previewing = false
	fmt.Fprintf(t.out, "\r%s\n%s", previewStyle.Sprint("preview: none"), prompt)
}

// ClearText is a no-op: the line reader consumes the input line on enter.
func (t *Terminal) ClearText() {}

// ClearImage is a no-op: the input loop drops the selection itself when it
// hands it to the client, so a late call cannot wipe a newer /image.
func (t *Terminal) ClearImage() {}

func (t *Terminal) Alert(text string) {
	t.printf("%s\n%s", alertStyle.Sprint(" ! "+text+" "), prompt)
}

// Selected returns the pending image selection, if any.
func (t *Terminal) Selected() *chatclient.ImageFile {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.selected
}

// takeSelected returns the pending selection and clears it.
func (t *Terminal) takeSelected() *chatclient.ImageFile {
	t.mu.Lock()
	defer t.mu.Unlock()
	img := t.selected
	t.selected = nil
	return img
}

func (t *Terminal) selectImage(path string) (*chatclient.ImageFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	img := &chatclient.ImageFile{Path: path}
	t.mu.Lock()
	t.selected = img
	t.mu.Unlock()
	return img, nil
}

// ReadInput turns lines from in into actions until in is exhausted, ctx is
// done or the user types /quit.
func (t *Terminal) ReadInput(ctx context.Context, in io.Reader, a Actions) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	t.ScrollToLatest()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case line := <-lines:
			if quit := t.handleLine(line, a); quit {
				return nil
			}
		}
	}
}

func (t *Terminal) handleLine(line string, a Actions) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch cmd {
	case "/quit":
		return true
	case "/image":
		arg = strings.TrimSpace(arg)
		if arg == "" {
			t.Alert("usage: /image <path>")
			return false
		}
		img, err := t.selectImage(arg)
		if err != nil {
			t.Alert(err.Error())
			return false
		}
		a.SelectImage(img)
	case "/remove":
		t.takeSelected()
		a.RemoveImage()
	default:
		a.SendMessage(line, t.takeSelected())
	}
	t.ScrollToLatest()
	return false
}
