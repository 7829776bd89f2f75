package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	ErrTooLarge        = errors.New("file too large")
	ErrUnsupportedType = errors.New("not an image, please upload an image")
	ErrEmpty           = errors.New("file is empty")
)

// Backend persists avatar bytes and returns the reference stored on the
// user record.
type Backend interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
	Delete(ctx context.Context, ref string) error
}

type Avatars struct {
	backend  Backend
	maxBytes int64
	allowed  []string
}

func NewAvatars(backend Backend, maxBytes int64, allowedTypes []string) *Avatars {
	return &Avatars{backend: backend, maxBytes: maxBytes, allowed: allowedTypes}
}

// Save checks size and sniffed content type, then stores the file under a
// random name keeping the detected extension.
func (a *Avatars) Save(ctx context.Context, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, a.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if int64(len(data)) > a.maxBytes {
		return "", ErrTooLarge
	}

	mtype := mimetype.Detect(data)
	if !a.typeAllowed(mtype.String()) {
		return "", ErrUnsupportedType
	}

	key := uuid.NewString() + mtype.Extension()
	ref, err := a.backend.Put(ctx, key, mtype.String(), bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("store avatar: %w", err)
	}
	return ref, nil
}

// Remove deletes a previously stored avatar. References the backend does
// not own are ignored.
func (a *Avatars) Remove(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	return a.backend.Delete(ctx, ref)
}

func (a *Avatars) typeAllowed(contentType string) bool {
	for _, allowed := range a.allowed {
		if strings.HasPrefix(contentType, allowed) {
			return true
		}
	}
	return false
}
