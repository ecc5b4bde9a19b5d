// Command pdf-extractor batch-converts a folder of PDF documents into
// page-level markdown by submitting rendered pages to Gemini, rotating
// through a pool of API keys and checkpointing progress so interrupted runs
// can resume.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Lllllllleong/pdfextract/internal/checkpoint"
	"github.com/Lllllllleong/pdfextract/internal/config"
	"github.com/Lllllllleong/pdfextract/internal/gemini"
	"github.com/Lllllllleong/pdfextract/internal/keypool"
	"github.com/Lllllllleong/pdfextract/internal/output"
	"github.com/Lllllllleong/pdfextract/internal/pipeline"
	"github.com/Lllllllleong/pdfextract/internal/raster"
	"github.com/Lllllllleong/pdfextract/internal/retry"
)

func main() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	os.Exit(run(logger))
}

func run(logger *slog.Logger) int {
	defaults := config.Default()

	var (
		configPath   = flag.String("config", "", "optional YAML config file; flags override its values")
		apiKey       = flag.String("api-key", "", "single API key")
		keyFile      = flag.String("key-file", "", "file containing one API key per line")
		pdfFolder    = flag.String("pdf-folder", "", "folder containing the source PDF files")
		outputFolder = flag.String("output-folder", "", "folder for the extracted markdown artifacts")
		start        = flag.Int("start", 0, "index of the first document to process")
		end          = flag.Int("end", 0, "index after the last document to process; 0 means all")
		modelName    = flag.String("model", defaults.Model, "Gemini model to use")
		proxy        = flag.String("proxy", defaults.Proxy, "proxy server address")
		noProxy      = flag.Bool("no-proxy", false, "connect directly, without any proxy")
		resume       = flag.Bool("resume", false, "resume from the last checkpoint")
		mirrorBucket = flag.String("mirror-bucket", "", "optional GCS bucket to mirror finished artifacts to")
	)
	flag.Parse()

	cfg := defaults
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			logger.Error("Failed to load config file.", "error", err)
			return 1
		}
		cfg = loaded
	}
	// Explicitly set flags win over both defaults and the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "api-key":
			cfg.APIKey = *apiKey
		case "key-file":
			cfg.KeyFile = *keyFile
		case "pdf-folder":
			cfg.PDFFolder = *pdfFolder
		case "output-folder":
			cfg.OutputFolder = *outputFolder
		case "start":
			cfg.Start = *start
		case "end":
			cfg.End = *end
		case "model":
			cfg.Model = *modelName
		case "proxy":
			cfg.Proxy = *proxy
		case "no-proxy":
			cfg.NoProxy = *noProxy
		case "resume":
			cfg.Resume = *resume
		case "mirror-bucket":
			cfg.MirrorBucket = *mirrorBucket
		}
	})
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration is invalid.", "error", err)
		flag.Usage()
		return 1
	}

	keys, err := resolveCredentials(cfg)
	if err != nil {
		logger.Error("No usable API credentials.", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := gemini.NewClient(gemini.Config{
		ProjectID: cfg.ProjectID,
		Region:    cfg.Region,
		Model:     cfg.Model,
		ProxyURL:  cfg.ProxyURL(),
	}, logger)
	if err != nil {
		logger.Error("Failed to create Gemini client.", "error", err)
		return 1
	}
	defer client.Close()

	pool, err := keypool.New(keys, func(key string) error {
		return client.UseCredential(ctx, key)
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize credential pool.", "error", err)
		return 1
	}

	engine := retry.New(retry.Config{
		MaxAttempts:   cfg.MaxAttempts,
		QuotaWait:     cfg.QuotaWait(),
		TransientStep: cfg.TransientStep(),
		UnknownStep:   cfg.UnknownStep(),
	}, pool, logger)

	store, err := checkpoint.NewStore(cfg.OutputFolder, logger)
	if err != nil {
		logger.Error("Failed to initialize checkpoint store.", "error", err)
		return 1
	}

	var mirror *output.Mirror
	if cfg.MirrorBucket != "" {
		mirror, err = output.NewMirror(ctx, cfg.MirrorBucket, logger)
		if err != nil {
			logger.Error("Failed to initialize artifact mirror.", "error", err)
			return 1
		}
		defer mirror.Close()
	}
	writer, err := output.NewWriter(cfg.OutputFolder, mirror, logger)
	if err != nil {
		logger.Error("Failed to initialize output writer.", "error", err)
		return 1
	}

	orchestrator := pipeline.New(pipeline.Config{
		PDFFolder:  cfg.PDFFolder,
		Start:      cfg.Start,
		End:        cfg.End,
		Resume:     cfg.Resume,
		DocRetries: cfg.DocRetries,
		DocPause:   cfg.DocPause(),
		PagePause:  cfg.PagePause(),
	}, raster.NewRenderer(cfg.MaxImageDimension, logger), client, engine, pool, store, writer, logger)

	report, err := orchestrator.Run(ctx)
	if err != nil {
		logger.Error("Run failed.", "error", err)
		return 1
	}
	if report.Interrupted {
		logger.Info("Interrupted. Re-run with --resume to continue from the checkpoint.")
		return 0
	}
	logger.Info("Extraction finished.",
		"succeeded", report.Succeeded, "failed", report.Failed, "skipped", report.Skipped)
	return 0
}

// resolveCredentials picks the credential source: an explicit key, an
// explicit key file, or the conventional key.txt next to the binary.
func resolveCredentials(cfg *config.Run) ([]string, error) {
	if cfg.APIKey != "" {
		return []string{cfg.APIKey}, nil
	}
	if cfg.KeyFile != "" {
		return keypool.Load(cfg.KeyFile)
	}
	if _, err := os.Stat(config.DefaultKeyFile); err == nil {
		return keypool.Load(config.DefaultKeyFile)
	}
	return nil, fmt.Errorf("provide --api-key or --key-file (or place keys in %s)", config.DefaultKeyFile)
}
