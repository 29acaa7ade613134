// Package assets stores uploaded place images and releases them when their
// place is deleted.
package assets

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
)

var (
	ErrNotFound         = errors.New("asset not found")
	ErrTooLarge         = errors.New("asset exceeds maximum upload size")
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrInvalidRef       = errors.New("invalid asset reference")
)

// Store persists binary assets under opaque references.
type Store interface {
	Save(ctx context.Context, name, contentType string, r io.Reader) (string, error)
	// Delete returns ErrNotFound when ref does not exist.
	Delete(ctx context.Context, ref string) error
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

var imageExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpeg",
}

// SniffImage reads the head of r and returns the detected content type with
// its file extension, plus a reader replaying the full content. Only PNG and
// JPEG are accepted.
func SniffImage(r io.Reader) (contentType, ext string, body io.Reader, err error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", "", nil, err
	}
	head = head[:n]

	contentType = http.DetectContentType(head)
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", "", nil, ErrUnsupportedImage
	}
	return contentType, ext, io.MultiReader(bytes.NewReader(head), r), nil
}

// LimitReader fails with ErrTooLarge once more than max bytes are read.
func LimitReader(r io.Reader, max int64) io.Reader {
	return &limitedReader{r: r, remaining: max}
}

type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, ErrTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, ErrTooLarge
	}
	return n, err
}
