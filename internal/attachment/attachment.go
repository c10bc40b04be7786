// Package attachment decodes the image and PDF uploads that accompany an
// investor pitch.
package attachment

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// MaxBytes is the largest decoded upload accepted.
const MaxBytes = 10 << 20

var supported = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"image/gif":       true,
	"application/pdf": true,
}

var (
	ErrInvalid     = errors.New("attachment: invalid data url")
	ErrUnsupported = errors.New("attachment: unsupported file type")
	ErrTooLarge    = errors.New("attachment: file exceeds 10MB")
)

// Attachment is a decoded upload.
type Attachment struct {
	MIMEType string
	Data     []byte
}

// IsImage reports whether the attachment is one of the supported image types.
func (a *Attachment) IsImage() bool {
	return strings.HasPrefix(a.MIMEType, "image/")
}

// IsPDF reports whether the attachment is a PDF document.
func (a *Attachment) IsPDF() bool {
	return a.MIMEType == "application/pdf"
}

// Base64 is the standard base64 encoding of the data.
func (a *Attachment) Base64() string {
	return base64.StdEncoding.EncodeToString(a.Data)
}

// DataURL renders the attachment as data:<mime>;base64,<data>.
func (a *Attachment) DataURL() string {
	return "data:" + a.MIMEType + ";base64," + a.Base64()
}

// Filename is a neutral name providers that want one can use.
func (a *Attachment) Filename() string {
	if a.IsPDF() {
		return "attachment.pdf"
	}
	return "attachment." + strings.TrimPrefix(a.MIMEType, "image/")
}

// Parse accepts a data URL or bare base64 (treated as JPEG, which is what the
// browser resizer produces).
func Parse(s string) (*Attachment, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalid
	}
	mime := "image/jpeg"
	payload := s
	if strings.HasPrefix(s, "data:") {
		header, data, ok := strings.Cut(s[len("data:"):], ",")
		if !ok {
			return nil, ErrInvalid
		}
		params := strings.Split(header, ";")
		mime = strings.ToLower(strings.TrimSpace(params[0]))
		isBase64 := false
		for _, p := range params[1:] {
			if strings.EqualFold(strings.TrimSpace(p), "base64") {
				isBase64 = true
			}
		}
		if !isBase64 {
			return nil, fmt.Errorf("%w: base64 encoding required", ErrInvalid)
		}
		payload = data
	}
	if !supported[mime] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, mime)
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxBytes+3 {
		return nil, ErrTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(data) > MaxBytes {
		return nil, ErrTooLarge
	}
	return &Attachment{MIMEType: mime, Data: data}, nil
}

// Load reads a local file, detecting its type from the content.
func Load(path string) (*Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > MaxBytes {
		return nil, ErrTooLarge
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	mime := http.DetectContentType(data)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	if !supported[mime] && strings.EqualFold(filepath.Ext(path), ".pdf") {
		mime = "application/pdf"
	}
	if !supported[mime] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, mime)
	}
	return &Attachment{MIMEType: mime, Data: data}, nil
}
