package raster

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRenderer(t *testing.T) *Renderer {
	t.Helper()
	return NewRenderer(1024, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(bytes.TrimSpace(p)))
	return len(p), nil
}

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))))
	return buf.Bytes()
}

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func TestNormalizeDownsamplesWideImage(t *testing.T) {
	r := testRenderer(t)
	page := Page{Number: 1, MIME: "image/png", Data: encodePNG(t, 2048, 512)}

	got := r.Normalize(page)

	assert.Equal(t, "image/png", got.MIME)
	w, h := decodeSize(t, got.Data)
	assert.Equal(t, 1024, w)
	assert.Equal(t, 256, h)
}

func TestNormalizeDownsamplesTallImage(t *testing.T) {
	r := testRenderer(t)
	page := Page{Number: 3, MIME: "image/png", Data: encodePNG(t, 500, 2000)}

	got := r.Normalize(page)

	w, h := decodeSize(t, got.Data)
	assert.Equal(t, 256, w)
	assert.Equal(t, 1024, h)
}

func TestNormalizeKeepsFittingImage(t *testing.T) {
	r := testRenderer(t)
	page := Page{Number: 1, MIME: "image/png", Data: encodePNG(t, 800, 600)}

	got := r.Normalize(page)
	assert.Equal(t, page.Data, got.Data)
}

func TestNormalizePassesThroughPDFPayload(t *testing.T) {
	r := testRenderer(t)
	page := Page{Number: 1, MIME: "application/pdf", Data: []byte("%PDF-1.7 not an image")}

	got := r.Normalize(page)
	assert.Equal(t, page, got)
}

func TestNormalizePassesThroughUndecodableImage(t *testing.T) {
	r := testRenderer(t)
	page := Page{Number: 1, MIME: "image/jpeg", Data: []byte("definitely not a jpeg")}

	got := r.Normalize(page)
	assert.Equal(t, page, got)
}

func TestNormalizeAllPreservesOrder(t *testing.T) {
	r := testRenderer(t)
	pages := []Page{
		{Number: 1, MIME: "image/png", Data: encodePNG(t, 2048, 2048)},
		{Number: 2, MIME: "application/pdf", Data: []byte("%PDF-1.7")},
		{Number: 3, MIME: "image/png", Data: encodePNG(t, 100, 100)},
	}

	got := r.NormalizeAll(context.Background(), pages)

	require.Len(t, got, 3)
	for i, page := range got {
		assert.Equal(t, i+1, page.Number)
	}
	w, h := decodeSize(t, got[0].Data)
	assert.Equal(t, 1024, w)
	assert.Equal(t, 1024, h)
	assert.Equal(t, pages[1].Data, got[1].Data)
	assert.Equal(t, pages[2].Data, got[2].Data)
}
