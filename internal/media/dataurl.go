// Package media converts images to and from inline data URLs and stores
// uploaded images on disk.
package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// UploadPrefix is the URL path uploaded images are served under.
const UploadPrefix = "/uploads/"

var AllowedExtensions = []string{"png", "jpg", "jpeg", "gif"}

var (
	ErrNotDataURL      = errors.New("not a data URL")
	ErrUnsupportedType = errors.New("unsupported image format")
)

// DataURL is a decoded "data:<mime>;base64,<payload>" string.
type DataURL struct {
	MIME string
	Ext  string
	Data []byte
}

// EncodeFile reads the file at p and returns it as a base64 data URL.
func EncodeFile(ctx context.Context, p string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", p, err)
	}
	return EncodeBytes(data), nil
}

// EncodeBytes sniffs the content type of data and wraps it in a data URL.
func EncodeBytes(data []byte) string {
	mt, _, _ := strings.Cut(mimetype.Detect(data).String(), ";")
	return "data:" + strings.TrimSpace(mt) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func splitDataURL(s string) (mt, ext, encoded string, err error) {
	header, encoded, ok := strings.Cut(s, ",")
	if !ok || !strings.HasPrefix(header, "data:") {
		return "", "", "", ErrNotDataURL
	}
	mt, _, _ = strings.Cut(strings.TrimPrefix(header, "data:"), ";")
	ext = mt
	if i := strings.LastIndex(mt, "/"); i >= 0 {
		ext = mt[i+1:]
	}
	return mt, ext, encoded, nil
}

// DecodeDataURL splits s into header and payload. The extension is the
// subtype of the header's media type, so "data:image/png;base64,..." yields
// "png".
func DecodeDataURL(s string) (DataURL, error) {
	mt, ext, encoded, err := splitDataURL(s)
	if err != nil {
		return DataURL{}, err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return DataURL{}, fmt.Errorf("decode base64 payload: %w", err)
	}
	return DataURL{MIME: mt, Ext: ext, Data: data}, nil
}

// DecodeImage decodes s and checks that it carries one of the allowed image
// formats. The declared extension is checked before the payload is decoded.
func DecodeImage(s string) (DataURL, error) {
	_, ext, _, err := splitDataURL(s)
	if err != nil {
		return DataURL{}, err
	}
	if !lo.Contains(AllowedExtensions, ext) {
		return DataURL{}, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	u, err := DecodeDataURL(s)
	if err != nil {
		return DataURL{}, err
	}
	if detected := mimetype.Detect(u.Data); !strings.HasPrefix(detected.String(), "image/") {
		return DataURL{}, fmt.Errorf("%w: content is %s", ErrUnsupportedType, detected.String())
	}
	return u, nil
}

// SaveUpload writes data under dir with a random name and returns the name.
func SaveUpload(dir, ext string, data []byte) (string, error) {
	name := strings.ReplaceAll(uuid.NewString(), "-", "") + "." + ext
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write upload %s: %w", name, err)
	}
	return name, nil
}

func UploadURL(name string) string {
	return UploadPrefix + name
}

// UploadPath maps an upload URL back to its file under dir.
func UploadPath(dir, url string) string {
	return filepath.Join(dir, path.Base(url))
}
