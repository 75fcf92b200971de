// Package blob defines the image store used for order assets and
// deliveries, plus helpers for data URL payloads.
package blob

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"regexp"
	"strings"

	"staging-studio-backend/internal/apperrors"
)

const DefaultContentType = "image/jpeg"

// ErrObjectNotFound is returned by Store.Get for a missing path.
var ErrObjectNotFound = errors.New("object not found")

// Object is a stored blob opened for reading.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// Store is a bucket of publicly addressable objects.
type Store interface {
	// Put writes data at path, replacing any existing object, and returns
	// the public URL.
	Put(ctx context.Context, path, contentType string, data []byte) (string, error)
	Get(ctx context.Context, path string) (*Object, error)
}

var dataURLPrefix = regexp.MustCompile(`^data:([^;,]+);base64,`)

// DecodeDataURL decodes "data:<mime>;base64,<payload>". A bare base64
// payload is accepted and treated as DefaultContentType.
func DecodeDataURL(file string) ([]byte, string, error) {
	contentType := DefaultContentType
	payload := strings.TrimSpace(file)
	if m := dataURLPrefix.FindStringSubmatch(payload); m != nil {
		contentType = m[1]
		payload = payload[len(m[0]):]
	} else if i := strings.IndexByte(payload, ','); i >= 0 {
		payload = payload[i+1:]
	}
	if payload == "" {
		return nil, "", apperrors.Clone(apperrors.ErrValidation, "file is empty")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(payload)
	}
	if err != nil {
		return nil, "", apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, "file is not valid base64")
	}
	return data, contentType, nil
}

// CleanPath validates an object path supplied by a caller.
func CleanPath(path string) (string, error) {
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	if path == "" {
		return "", apperrors.Clone(apperrors.ErrValidation, "path is required")
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." || seg == "." {
			return "", apperrors.Clone(apperrors.ErrValidation, "path must not contain relative segments")
		}
	}
	return path, nil
}
