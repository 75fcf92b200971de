package vision

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/disintegration/imaging"
	"staging-studio-backend/internal/blob"
)

const (
	MaxDimension = 1024
	JPEGQuality  = 80
)

// PrepareImage decodes a data URL or bare base64 image, fits it into
// MaxDimension on both sides and re-encodes it as base64 JPEG.
func PrepareImage(file string) (string, error) {
	raw, _, err := blob.DecodeDataURL(file)
	if err != nil {
		return "", err
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() > MaxDimension || b.Dy() > MaxDimension {
		img = imaging.Fit(img, MaxDimension, MaxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// PrefixInstructions prepends an analysis to client instructions.
func PrefixInstructions(analysis, instructions string) string {
	if analysis == "" {
		return instructions
	}
	return fmt.Sprintf("[AI Vision: %s]\n\n%s", analysis, instructions)
}
