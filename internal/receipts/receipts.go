// Package receipts stores receipt images and PDFs attached to expenses.
package receipts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"

	"spendwise/internal/core"
)

//go:generate mockgen -source=receipts.go -destination=store_mock.go -package=receipts

// DefaultMaxBytes caps an upload when no limit is configured.
const DefaultMaxBytes int64 = 10 << 20

// Store is a flat object store addressed by slash-separated keys.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	// Get returns core.ErrNotFound when the key does not exist.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

var allowed = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

// Upload is a validated receipt ready to be stored.
type Upload struct {
	Data        []byte
	ContentType string
	Ext         string
}

// ReadUpload reads at most maxBytes from r and checks the sniffed content
// type. Oversized and unsupported uploads are validation errors.
func ReadUpload(r io.Reader, maxBytes int64) (Upload, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return Upload{}, fmt.Errorf("read receipt: %w", err)
	}
	if len(data) == 0 {
		return Upload{}, core.Validation("receipt file is empty")
	}
	if int64(len(data)) > maxBytes {
		return Upload{}, core.Validationf("receipt exceeds %d bytes", maxBytes)
	}
	ct := http.DetectContentType(data)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ext, ok := allowed[ct]
	if !ok {
		return Upload{}, core.Validationf("unsupported receipt type %s: use JPEG, PNG, WebP or PDF", ct)
	}
	return Upload{Data: data, ContentType: ct, Ext: ext}, nil
}

func (u Upload) Reader() io.Reader {
	return bytes.NewReader(u.Data)
}

// NewKey returns a fresh key under the user's receipt prefix.
func NewKey(userID int64, ext string) string {
	return fmt.Sprintf("receipts/%d/%s%s", userID, uuid.NewString(), ext)
}

// OwnedBy reports whether key lives under the user's receipt prefix.
func OwnedBy(key string, userID int64) bool {
	return strings.HasPrefix(key, fmt.Sprintf("receipts/%d/", userID))
}

// ContentTypeFor maps a stored key back to its content type.
func ContentTypeFor(key string) string {
	ext := path.Ext(key)
	for ct, e := range allowed {
		if e == ext {
			return ct
		}
	}
	return "application/octet-stream"
}

func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || path.Clean(key) != key || strings.Contains(key, "..") {
		return core.Validationf("invalid receipt key %q", key)
	}
	return nil
}
