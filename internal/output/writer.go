// Package output persists one text artifact per document, named
// deterministically from the source document's base name.
package output

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// PageResult is the outcome of one page's OCR call. Exactly one of Text or
// Err is meaningful.
type PageResult struct {
	Number int
	Text   string
	Err    error
}

// Writer writes document artifacts into the output folder.
type Writer struct {
	dir    string
	ext    string
	mirror *Mirror
	logger *slog.Logger
}

// NewWriter creates the output folder if needed. mirror may be nil.
func NewWriter(dir string, mirror *Mirror, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output folder %s: %w", dir, err)
	}
	return &Writer{dir: dir, ext: ".md", mirror: mirror, logger: logger}, nil
}

// ArtifactPath returns the deterministic artifact path for a source document.
func (w *Writer) ArtifactPath(docPath string) string {
	base := strings.TrimSuffix(filepath.Base(docPath), filepath.Ext(docPath))
	return filepath.Join(w.dir, base+w.ext)
}

// Write renders the page results into one artifact and lands it atomically:
// the content goes to a temp file first and is renamed into place, so an
// interrupt never leaves a partial artifact behind. Failed pages get an
// inline error marker instead of sinking the whole document.
func (w *Writer) Write(ctx context.Context, docPath string, pages []PageResult) (string, error) {
	var b strings.Builder
	for i, page := range pages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "=== Page %d ===\n\n", page.Number)
		if page.Err != nil {
			fmt.Fprintf(&b, "[OCR failed for page %d: %v]", page.Number, page.Err)
		} else {
			b.WriteString(page.Text)
		}
	}
	content := b.String()

	artifactPath := w.ArtifactPath(docPath)
	tmp, err := os.CreateTemp(w.dir, ".artifact-*")
	if err != nil {
		return "", fmt.Errorf("failed to create artifact temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to finalize artifact: %w", err)
	}
	if err := os.Rename(tmpName, artifactPath); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to place artifact %s: %w", artifactPath, err)
	}

	if w.mirror != nil {
		// Mirroring is best effort: a failed upload never fails the document.
		if err := w.mirror.Upload(ctx, filepath.Base(artifactPath), content); err != nil {
			w.logger.Warn("Failed to mirror artifact.", "artifact", artifactPath, "error", err)
		}
	}
	return artifactPath, nil
}
