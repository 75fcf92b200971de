package blob

import (
	"context"
	"fmt"

	"staging-studio-backend/internal/apperrors"
)

// Uploader stores data URL payloads.
type Uploader struct {
	store Store
}

func NewUploader(store Store) *Uploader {
	return &Uploader{store: store}
}

// UploadDataURL decodes file and stores it at path. Any failure is an
// ErrUpload so callers abort the action that depended on it.
func (u *Uploader) UploadDataURL(ctx context.Context, path, file string) (string, error) {
	clean, err := CleanPath(path)
	if err != nil {
		return "", err
	}
	data, contentType, err := DecodeDataURL(file)
	if err != nil {
		return "", err
	}
	url, err := u.store.Put(ctx, clean, contentType, data)
	if err != nil {
		return "", apperrors.WithCause(apperrors.ErrUpload, fmt.Errorf("failed to upload %s: %w", clean, err))
	}
	return url, nil
}

// Open reads a stored object.
func (u *Uploader) Open(ctx context.Context, path string) (*Object, error) {
	clean, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	return u.store.Get(ctx, clean)
}
