// Package raster turns one PDF document into an ordered sequence of page
// payloads ready for the OCR service. Rendering is delegated to pdfcpu; this
// package only chooses between the two extraction strategies and enforces the
// service's input-size constraints.
package raster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"
)

// Page is one rendered page and its 1-based ordinal within the document.
type Page struct {
	Number int
	MIME   string
	Data   []byte
}

// Renderer produces page payloads from PDF documents.
type Renderer struct {
	// MaxDimension bounds the longer side of a page image; larger images are
	// downsampled by Normalize.
	MaxDimension int
	logger       *slog.Logger
}

// NewRenderer creates a renderer. maxDimension <= 0 selects the default of 1024.
func NewRenderer(maxDimension int, logger *slog.Logger) *Renderer {
	if maxDimension <= 0 {
		maxDimension = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{MaxDimension: maxDimension, logger: logger}
}

// Render converts the document at path into ordered pages. The primary
// strategy extracts the full-page scan image of each page; when the document
// is not a clean scan, the fallback splits it into single-page PDFs that the
// service consumes directly. Only when both strategies fail does Render
// return an empty sequence, and the caller treats that as fatal for the
// document, not the run.
func (r *Renderer) Render(ctx context.Context, path string) ([]Page, error) {
	pages, primaryErr := r.renderScanImages(path)
	if primaryErr == nil {
		r.logger.Info("Rendered document pages from scan images.", "document", path, "pageCount", len(pages))
		return pages, nil
	}
	r.logger.Warn("Primary render strategy failed, trying page split.", "document", path, "error", primaryErr)

	pages, fallbackErr := r.renderSplitPages(path)
	if fallbackErr != nil {
		return nil, fmt.Errorf("both render strategies failed for %s: %w", path, errors.Join(primaryErr, fallbackErr))
	}
	r.logger.Info("Rendered document pages via page split.", "document", path, "pageCount", len(pages))
	return pages, nil
}

// renderScanImages extracts the embedded full-page image of every page. This
// is the high-fidelity path for scanned documents, where each page is exactly
// one image XObject.
func (r *Renderer) renderScanImages(path string) ([]Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	if pdfCtx.PageCount == 0 {
		return nil, fmt.Errorf("document has no pages")
	}

	pages := make([]Page, 0, pdfCtx.PageCount)
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		images, err := pdfcpu.ExtractPageImages(pdfCtx, pageNr, false)
		if err != nil {
			return nil, fmt.Errorf("failed to extract images for page %d: %w", pageNr, err)
		}
		if len(images) != 1 {
			return nil, fmt.Errorf("page %d holds %d images, not a full-page scan", pageNr, len(images))
		}
		for _, img := range images {
			mime, ok := imageMIME(img.FileType)
			if !ok {
				return nil, fmt.Errorf("page %d image type %q is not supported", pageNr, img.FileType)
			}
			data, err := io.ReadAll(img)
			if err != nil {
				return nil, fmt.Errorf("failed to read image for page %d: %w", pageNr, err)
			}
			pages = append(pages, Page{Number: pageNr, MIME: mime, Data: data})
		}
	}
	return pages, nil
}

// renderSplitPages optimizes the document with relaxed validation and splits
// it into single-page PDFs, each submitted to the service as-is.
func (r *Renderer) renderSplitPages(path string) ([]Page, error) {
	tempDir, err := os.MkdirTemp("", "pdf-render-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	optimizedPath := filepath.Join(tempDir, "optimized.pdf")
	if err := api.OptimizeFile(path, optimizedPath, conf); err != nil {
		return nil, fmt.Errorf("failed to optimize PDF: %w", err)
	}
	pageCount, err := api.PageCountFile(optimizedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	if pageCount == 0 {
		return nil, fmt.Errorf("document has no pages")
	}
	if err := api.SplitFile(optimizedPath, tempDir, 1, conf); err != nil {
		return nil, fmt.Errorf("failed to split PDF: %w", err)
	}

	splitFileBase := strings.TrimSuffix(optimizedPath, filepath.Ext(optimizedPath))
	pages := make([]Page, 0, pageCount)
	for pageNr := 1; pageNr <= pageCount; pageNr++ {
		data, err := os.ReadFile(fmt.Sprintf("%s_%d.pdf", splitFileBase, pageNr))
		if err != nil {
			return nil, fmt.Errorf("failed to read split page %d: %w", pageNr, err)
		}
		pages = append(pages, Page{Number: pageNr, MIME: "application/pdf", Data: data})
	}
	return pages, nil
}

// NormalizeAll downsamples oversized page images with a bounded local fan-out.
// This is pure CPU work; the external call path stays strictly sequential.
func (r *Renderer) NormalizeAll(ctx context.Context, pages []Page) []Page {
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(4)

	normalized := make([]Page, len(pages))
	for i, page := range pages {
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				normalized[i] = page
				return nil
			}
			normalized[i] = r.Normalize(page)
			return nil
		})
	}
	_ = eg.Wait()
	return normalized
}

func imageMIME(fileType string) (string, bool) {
	switch strings.ToLower(fileType) {
	case "png":
		return "image/png", true
	case "jpg", "jpeg":
		return "image/jpeg", true
	case "webp":
		return "image/webp", true
	default:
		return "", false
	}
}
