// Package pipeline drives the batch extraction run: one document, one page,
// one external call in flight at a time. All pacing and backoff waits are
// blocking sleeps on this single control path, because the external service
// imposes an aggregate rate ceiling that client-side parallelism would only
// trip faster.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Lllllllleong/pdfextract/internal/checkpoint"
	"github.com/Lllllllleong/pdfextract/internal/natsort"
	"github.com/Lllllllleong/pdfextract/internal/output"
	"github.com/Lllllllleong/pdfextract/internal/raster"
)

// errRenderFailed marks a document both render strategies gave up on.
// It is terminal for the document, so the outer retry budget is skipped.
var errRenderFailed = errors.New("document could not be rendered")

// OCRCaller runs one recognition call for a single page payload.
type OCRCaller interface {
	RecognizePage(ctx context.Context, mimeType string, data []byte, pageNumber int) (string, error)
}

// Renderer produces and normalizes page payloads for a document.
type Renderer interface {
	Render(ctx context.Context, path string) ([]raster.Page, error)
	NormalizeAll(ctx context.Context, pages []raster.Page) []raster.Page
}

// Invoker applies the per-call retry policy around an operation.
type Invoker interface {
	Invoke(ctx context.Context, op func(ctx context.Context) (string, error)) (string, error)
}

// KeyState exposes the credential-pool state the orchestrator checkpoints.
type KeyState interface {
	Index() int
	SetIndex(i int) error
}

// Config holds the orchestrator's explicit run parameters.
type Config struct {
	PDFFolder string
	// Start and End restrict processing to the half-open range [Start, End)
	// over the natural-sorted document list. End <= 0 means the full list.
	Start int
	End   int
	// Resume restores the document index and credential index from the
	// checkpoint of an interrupted prior run.
	Resume bool
	// DocRetries is the outer per-document attempt budget, distinct from the
	// per-call budget inside the retry engine.
	DocRetries int
	// DocRetryStep scales the linear wait between outer document attempts.
	DocRetryStep time.Duration
	// DocPause and PagePause are the fixed pacing delays chosen to stay
	// under the service's rate ceiling. Not adaptive.
	DocPause  time.Duration
	PagePause time.Duration
}

func (c *Config) defaults() {
	if c.DocRetries <= 0 {
		c.DocRetries = 3
	}
	if c.DocRetryStep <= 0 {
		c.DocRetryStep = 10 * time.Second
	}
}

// Report summarizes a finished or interrupted run.
type Report struct {
	Total       int
	Succeeded   int
	Failed      int
	Skipped     int
	Interrupted bool
	FailedDocs  []string
}

// Orchestrator wires the pipeline components together.
type Orchestrator struct {
	cfg      Config
	renderer Renderer
	ocr      OCRCaller
	retrier  Invoker
	keys     KeyState
	store    *checkpoint.Store
	writer   *output.Writer
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator.
func New(cfg Config, renderer Renderer, ocr OCRCaller, retrier Invoker, keys KeyState, store *checkpoint.Store, writer *output.Writer, logger *slog.Logger) *Orchestrator {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:      cfg,
		renderer: renderer,
		ocr:      ocr,
		retrier:  retrier,
		keys:     keys,
		store:    store,
		writer:   writer,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// Run processes every document in the configured range. Per-document failures
// are counted and logged, never fatal; only an interrupt stops the run early,
// and then the checkpoint stays on disk for --resume.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	allDocs, err := o.discoverDocuments()
	if err != nil {
		return nil, err
	}

	start, end := o.cfg.Start, o.cfg.End
	if o.cfg.Resume {
		cp, err := o.store.Load()
		if err != nil {
			o.logger.Warn("Failed to read checkpoint, starting from the configured index.", "error", err)
		} else if cp != nil {
			start = cp.CurrentIndex
			o.logger.Info("Resuming from checkpoint.",
				"index", cp.CurrentIndex, "document", cp.CurrentFile, "savedAt", cp.Timestamp)
			if err := o.keys.SetIndex(cp.KeyIndex); err != nil {
				o.logger.Warn("Failed to restore credential index from checkpoint.", "keyIndex", cp.KeyIndex, "error", err)
			} else {
				o.logger.Info("Restored active credential from checkpoint.", "keyIndex", cp.KeyIndex)
			}
		} else {
			o.logger.Info("No checkpoint found, starting from the beginning.")
		}
	}

	if start < 0 {
		start = 0
	}
	if start > len(allDocs) {
		start = len(allDocs)
	}
	if end <= 0 || end > len(allDocs) {
		end = len(allDocs)
	}
	if end < start {
		end = start
	}
	docs := allDocs[start:end]

	done, err := o.store.Reconcile(docs, o.writer.ArtifactPath)
	if err != nil {
		return nil, err
	}

	report := &Report{Total: len(docs)}
	o.logger.Info("Starting extraction run.", "documents", len(docs), "startIndex", start, "endIndex", end)
	runStart := time.Now()

	for i, docPath := range docs {
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}

		// Checkpoint before any work on this document so a crash resumes here.
		cp := &checkpoint.Checkpoint{
			CurrentIndex: start + i,
			CurrentFile:  docPath,
			Timestamp:    time.Now(),
			KeyIndex:     o.keys.Index(),
		}
		if err := o.store.Save(cp); err != nil {
			return report, fmt.Errorf("failed to save checkpoint: %w", err)
		}

		docName := filepath.Base(docPath)
		logCtx := o.logger.With("document", docName, "position", fmt.Sprintf("%d/%d", i+1, len(docs)))

		if done[docPath] {
			logCtx.Info("Skipping already processed document.")
			report.Skipped++
			continue
		}

		logCtx.Info("Processing document.")
		docStart := time.Now()

		err := o.processWithRetries(ctx, logCtx, docPath)
		switch {
		case err == nil:
			if err := o.store.MarkCompleted(docPath); err != nil {
				return report, fmt.Errorf("failed to record completed document: %w", err)
			}
			report.Succeeded++
			logCtx.Info("Document completed.", "elapsed", time.Since(docStart).Round(time.Second).String())
		case ctx.Err() != nil:
			report.Interrupted = true
		default:
			report.Failed++
			report.FailedDocs = append(report.FailedDocs, docPath)
			logCtx.Error("Document failed, continuing with the next one.", "error", err)
		}
		if report.Interrupted {
			break
		}

		if i < len(docs)-1 && o.cfg.DocPause > 0 {
			logCtx.Info("Pausing before next document.", "pause", o.cfg.DocPause.String())
			if err := o.sleep(ctx, o.cfg.DocPause); err != nil {
				report.Interrupted = true
				break
			}
		}

		o.logProgress(i+1, len(docs), runStart, report)
	}

	if report.Interrupted {
		o.logger.Info("Run interrupted. Checkpoint kept for resume.",
			"succeeded", report.Succeeded, "failed", report.Failed, "skipped", report.Skipped)
		return report, nil
	}

	if err := o.store.Clear(); err != nil {
		return report, err
	}
	o.logger.Info("All documents processed.",
		"succeeded", report.Succeeded, "failed", report.Failed, "skipped", report.Skipped)
	return report, nil
}

// processWithRetries applies the outer per-document budget. Render failures
// are terminal immediately; everything else gets a linear wait and another go.
func (o *Orchestrator) processWithRetries(ctx context.Context, logCtx *slog.Logger, docPath string) error {
	var lastErr error
	for attempt := 1; attempt <= o.cfg.DocRetries; attempt++ {
		err := o.processDocument(ctx, logCtx, docPath)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || errors.Is(err, errRenderFailed) {
			return err
		}
		logCtx.Error("Document attempt failed.", "attempt", attempt, "maxAttempts", o.cfg.DocRetries, "error", err)
		if attempt < o.cfg.DocRetries {
			wait := time.Duration(attempt) * o.cfg.DocRetryStep
			logCtx.Info("Waiting before document retry.", "wait", wait.String())
			if err := o.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// processDocument renders, recognizes, and persists one document. A subset of
// failed pages still yields an artifact with inline error markers; losing all
// progress on a multi-page document because of one bad page is worse than a
// marked gap. Only when every page fails is the document itself a failure.
func (o *Orchestrator) processDocument(ctx context.Context, logCtx *slog.Logger, docPath string) error {
	pages, err := o.renderer.Render(ctx, docPath)
	if err != nil || len(pages) == 0 {
		return fmt.Errorf("%w: %s: %v", errRenderFailed, docPath, err)
	}
	pages = o.renderer.NormalizeAll(ctx, pages)

	results := make([]output.PageResult, 0, len(pages))
	failedPages := 0
	for j, page := range pages {
		logCtx.Info("Recognizing page.", "page", page.Number, "pageCount", len(pages))

		text, err := o.retrier.Invoke(ctx, func(callCtx context.Context) (string, error) {
			return o.ocr.RecognizePage(callCtx, page.MIME, page.Data, page.Number)
		})
		if err != nil {
			if ctx.Err() != nil {
				// Interrupted: leave no partial artifact for this document.
				return ctx.Err()
			}
			failedPages++
			logCtx.Error("Page failed terminally, marking inline.", "page", page.Number, "error", err)
			results = append(results, output.PageResult{Number: page.Number, Err: err})
		} else {
			results = append(results, output.PageResult{Number: page.Number, Text: text})
		}

		if j < len(pages)-1 && o.cfg.PagePause > 0 {
			if err := o.sleep(ctx, o.cfg.PagePause); err != nil {
				return err
			}
		}
	}

	if failedPages == len(pages) {
		return fmt.Errorf("all %d pages failed for %s", len(pages), docPath)
	}
	if failedPages > 0 {
		logCtx.Warn("Document completed with failed pages.", "failedPages", failedPages, "pageCount", len(pages))
	}

	artifactPath, err := o.writer.Write(ctx, docPath, results)
	if err != nil {
		return err
	}
	logCtx.Info("Artifact written.", "artifact", artifactPath)
	return nil
}

// discoverDocuments lists the PDF files in the input folder in natural order.
func (o *Orchestrator) discoverDocuments() ([]string, error) {
	if _, err := os.Stat(o.cfg.PDFFolder); err != nil {
		return nil, fmt.Errorf("cannot access PDF folder %s: %w", o.cfg.PDFFolder, err)
	}
	docs, err := filepath.Glob(filepath.Join(o.cfg.PDFFolder, "*.pdf"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan PDF folder: %w", err)
	}
	natsort.Sort(docs)
	o.logger.Info("Discovered documents.", "folder", o.cfg.PDFFolder, "count", len(docs))
	return docs, nil
}

func (o *Orchestrator) logProgress(visited, total int, runStart time.Time, report *Report) {
	if visited == 0 || visited == total {
		return
	}
	attempted := report.Succeeded + report.Failed
	if attempted == 0 {
		return
	}
	perDoc := time.Since(runStart) / time.Duration(attempted)
	remaining := time.Duration(total-visited) * perDoc
	o.logger.Info("Progress.",
		"visited", visited, "total", total,
		"estimatedRemaining", remaining.Round(time.Minute).String())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
