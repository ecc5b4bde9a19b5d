// Package merge concatenates per-document markdown artifacts into one file
// with a table of contents, in natural order regardless of how the filesystem
// lists them.
package merge

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Lllllllleong/pdfextract/internal/natsort"
)

// Config holds the merge parameters.
type Config struct {
	InputFolder  string
	OutputFile   string
	Pattern      string
	Title        string
	AddHeaders   bool
	AddSeparator bool
}

// Report summarizes a finished merge.
type Report struct {
	FileCount   int
	OutputBytes int64
}

// Merge concatenates the matching files from the input folder into the output
// file. Files under the hidden recovery folder are always excluded. A file
// that cannot be read is logged and skipped; the merge continues.
func Merge(cfg Config, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pattern == "" {
		cfg.Pattern = "*.md"
	}
	if cfg.Title == "" {
		cfg.Title = "Merged PDF Extraction Results"
	}

	if _, err := os.Stat(cfg.InputFolder); err != nil {
		return nil, fmt.Errorf("input folder %s does not exist: %w", cfg.InputFolder, err)
	}

	matches, err := filepath.Glob(filepath.Join(cfg.InputFolder, cfg.Pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid file pattern %q: %w", cfg.Pattern, err)
	}
	files := matches[:0]
	for _, m := range matches {
		if strings.Contains(m, ".recovery") {
			continue
		}
		files = append(files, m)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files matching %q found in %s", cfg.Pattern, cfg.InputFolder)
	}

	natsort.Sort(files)
	logger.Info("Found files to merge.", "count", len(files), "folder", cfg.InputFolder)

	if dir := filepath.Dir(cfg.OutputFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}

	out, err := os.Create(cfg.OutputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", cfg.OutputFile, err)
	}
	w := bufio.NewWriter(out)

	var mergeErr error
	writeHeader(w, cfg, files)
	for i, path := range files {
		name := baseName(path)
		logger.Info("Merging file.", "position", fmt.Sprintf("%d/%d", i+1, len(files)), "file", name)

		src, err := os.Open(path)
		if err != nil {
			logger.Error("Failed to open file, skipping.", "file", path, "error", err)
			continue
		}
		if cfg.AddHeaders {
			fmt.Fprintf(w, "## %s\n\n", name)
		}
		if _, err := io.Copy(w, src); err != nil {
			src.Close()
			mergeErr = fmt.Errorf("failed to copy content from %s: %w", path, err)
			break
		}
		src.Close()

		if cfg.AddSeparator && i < len(files)-1 {
			w.WriteString("\n\n---\n\n")
		} else {
			w.WriteString("\n\n")
		}
	}

	if err := w.Flush(); err != nil && mergeErr == nil {
		mergeErr = fmt.Errorf("failed to flush output: %w", err)
	}
	if err := out.Close(); err != nil && mergeErr == nil {
		mergeErr = fmt.Errorf("failed to finalize %s: %w", cfg.OutputFile, err)
	}
	if mergeErr != nil {
		return nil, mergeErr
	}

	info, err := os.Stat(cfg.OutputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to stat output file: %w", err)
	}
	logger.Info("Merge complete.", "output", cfg.OutputFile, "sizeBytes", info.Size())
	return &Report{FileCount: len(files), OutputBytes: info.Size()}, nil
}

// writeHeader emits the title, the generated-by line, and the table of
// contents with in-document anchors.
func writeHeader(w io.Writer, cfg Config, files []string) {
	fmt.Fprintf(w, "# %s\n\n", cfg.Title)
	fmt.Fprintf(w, "*This file was generated automatically by merging %d extraction results*\n\n", len(files))

	fmt.Fprintf(w, "## Contents\n\n")
	for i, path := range files {
		name := baseName(path)
		fmt.Fprintf(w, "%d. [%s](#%s)\n", i+1, name, anchor(name))
	}
	fmt.Fprintf(w, "\n---\n\n")
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// anchor converts a file name to the lowercase-dash form markdown viewers use
// for header links.
func anchor(name string) string {
	return strings.NewReplacer(" ", "-", "(", "", ")", "").Replace(strings.ToLower(name))
}
