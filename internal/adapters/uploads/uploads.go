// Package uploads stores complaint images on local disk under generated keys.
package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// DefaultMaxBytes caps a single image.
const DefaultMaxBytes = 5 << 20

// Errors returned by Save and Open.
var (
	ErrEmpty           = errors.New("uploaded file is empty")
	ErrTooLarge        = errors.New("uploaded file is too large")
	ErrUnsupportedType = errors.New("uploaded file is not a supported image")
	ErrInvalidKey      = errors.New("invalid upload key")
	ErrNotFound        = errors.New("upload not found")
)

// allowedTypes maps accepted content types to the extension used in keys.
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// DiskStore keeps images as flat files in one directory.
type DiskStore struct {
	dir      string
	maxBytes int64
}

// NewDiskStore creates the directory if needed.
// PRE: dir is writable
func NewDiskStore(dir string, maxBytes int64) (*DiskStore, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{dir: dir, maxBytes: maxBytes}, nil
}

// MaxBytes is the per-file size limit.
func (d *DiskStore) MaxBytes() int64 {
	return d.maxBytes
}

// Save sniffs r, rejects non-images and oversize files, and writes the content
// under a fresh key of the form <uuid><ext>.
// POST: On success the returned key names a file inside the store directory
func (d *DiskStore) Save(ctx context.Context, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, d.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if int64(len(data)) > d.maxBytes {
		return "", ErrTooLarge
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	mime := mimetype.Detect(data)
	ext, ok := allowedTypes[mime.String()]
	if !ok {
		slog.Info("upload_rejected", "content_type", mime.String(), "size", len(data))
		return "", ErrUnsupportedType
	}

	key := uuid.NewString() + ext
	f, err := os.OpenFile(filepath.Join(d.dir, key), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close upload: %w", err)
	}
	return key, nil
}

// Open returns the file for key along with its content type.
func (d *DiskStore) Open(key string) (*os.File, string, error) {
	path, err := d.path(key)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	return f, contentTypeFor(key), nil
}

// Delete removes the file for key. A missing file is not an error.
func (d *DiskStore) Delete(_ context.Context, key string) error {
	if key == "" {
		return nil
	}
	path, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove upload %s: %w", key, err)
	}
	return nil
}

// path resolves key inside the store directory, refusing anything that could escape it.
func (d *DiskStore) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", ErrInvalidKey
	}
	return filepath.Join(d.dir, key), nil
}

func contentTypeFor(key string) string {
	ext := filepath.Ext(key)
	for ct, e := range allowedTypes {
		if e == ext {
			return ct
		}
	}
	return "application/octet-stream"
}
