// Package images normalizes uploaded photos for the vision API: downscale,
// re-encode as JPEG, and wrap as a data URL.
package images

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/disintegration/imaging"
)

const (
	maxEdge     = 1200
	jpegQuality = 85
)

// Process decodes any supported image, fits it inside 1200x1200 without
// enlargement and re-encodes it as JPEG quality 85.
func Process(r io.Reader) ([]byte, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxEdge || bounds.Dy() > maxEdge {
		img = imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURL wraps a processed JPEG so it can be embedded in a vision prompt.
func DataURL(jpeg []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
}
