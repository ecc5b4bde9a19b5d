package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	_ "image/jpeg"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Normalize downsamples an oversized page image so its longer side fits
// MaxDimension, preserving aspect ratio, and re-encodes it as PNG. Non-image
// payloads and images that already fit pass through unchanged. Decode or
// encode failures also pass through: the service call is the place that
// rejects a genuinely broken payload.
func (r *Renderer) Normalize(page Page) Page {
	switch page.MIME {
	case "image/png", "image/jpeg", "image/webp":
	default:
		return page
	}

	img, _, err := image.Decode(bytes.NewReader(page.Data))
	if err != nil {
		r.logger.Warn("Failed to decode page image, submitting as-is.", "page", page.Number, "error", err)
		return page
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= r.MaxDimension && height <= r.MaxDimension {
		return page
	}

	newWidth, newHeight := r.MaxDimension, r.MaxDimension
	if width > height {
		newHeight = height * r.MaxDimension / width
	} else {
		newWidth = width * r.MaxDimension / height
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		r.logger.Warn("Failed to re-encode page image, submitting as-is.", "page", page.Number, "error", err)
		return page
	}

	r.logger.Info("Downsampled oversized page image.",
		"page", page.Number,
		"from", fmt.Sprintf("%dx%d", width, height),
		"to", fmt.Sprintf("%dx%d", newWidth, newHeight))
	return Page{Number: page.Number, MIME: "image/png", Data: buf.Bytes()}
}
