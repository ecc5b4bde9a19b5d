// Package retry wraps a single external call with the flow-control policy of
// the pipeline: credential rotation on quota errors, linear backoff on
// transient failures, and a bounded attempt budget.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/pdfextract/internal/gemini"
)

// Rotator is the credential-pool surface the engine needs. Rotate advances to
// the next usable credential; ok=false signals a full sweep found none.
type Rotator interface {
	Rotate() (string, bool)
}

// Config holds the attempt budget and backoff schedule.
type Config struct {
	// MaxAttempts bounds how many attempts one Invoke may consume.
	MaxAttempts int
	// QuotaWait is the long fixed wait used when every credential is
	// exhausted and the only option is to sit out the quota window.
	QuotaWait time.Duration
	// TransientStep scales the linear backoff for network/server failures.
	TransientStep time.Duration
	// UnknownStep scales the shorter linear backoff for unclassified failures.
	UnknownStep time.Duration
}

func (c *Config) defaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.QuotaWait <= 0 {
		c.QuotaWait = 2 * time.Minute
	}
	if c.TransientStep <= 0 {
		c.TransientStep = 30 * time.Second
	}
	if c.UnknownStep <= 0 {
		c.UnknownStep = 15 * time.Second
	}
}

// Engine applies the retry policy around an operation.
type Engine struct {
	cfg    Config
	pool   Rotator
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates an engine over the given credential pool.
func New(cfg Config, pool Rotator, logger *slog.Logger) *Engine {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:    cfg,
		pool:   pool,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Invoke runs op until it succeeds, its failure is terminal, or the attempt
// budget runs out. Rotating to a fresh credential does not consume budget,
// but every rotation is followed by exactly one call before the next rotation
// decision, so a pool where every key fails still terminates: once the sweep
// reports exhaustion, each further quota failure costs an attempt.
func (e *Engine) Invoke(ctx context.Context, op func(ctx context.Context) (string, error)) (string, error) {
	attempts := 0
	var lastErr error

	for attempts < e.cfg.MaxAttempts {
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		switch kind := gemini.Classify(err); kind {
		case gemini.KindQuota:
			e.logger.Warn("Quota limit detected, attempting credential rotation.", "error", err)
			if _, ok := e.pool.Rotate(); ok {
				// Fresh credential: retry immediately, no budget consumed.
				continue
			}
			attempts++
			e.logger.Warn("All credentials exhausted. Waiting out the quota window.",
				"wait", e.cfg.QuotaWait.String(), "attempt", attempts, "maxAttempts", e.cfg.MaxAttempts)
			if err := e.sleep(ctx, e.cfg.QuotaWait); err != nil {
				return "", err
			}

		case gemini.KindInvalidInput:
			e.logger.Error("Input rejected by the service. Not retrying.", "error", err)
			return "", err

		case gemini.KindTransient:
			attempts++
			wait := time.Duration(attempts) * e.cfg.TransientStep
			e.logger.Warn("Transient failure, will retry.",
				"wait", wait.String(), "attempt", attempts, "maxAttempts", e.cfg.MaxAttempts, "error", err)
			if attempts < e.cfg.MaxAttempts {
				if err := e.sleep(ctx, wait); err != nil {
					return "", err
				}
			}

		default:
			attempts++
			wait := time.Duration(attempts) * e.cfg.UnknownStep
			e.logger.Warn("Unclassified failure, will retry.",
				"wait", wait.String(), "attempt", attempts, "maxAttempts", e.cfg.MaxAttempts, "error", err)
			if attempts < e.cfg.MaxAttempts {
				if err := e.sleep(ctx, wait); err != nil {
					return "", err
				}
			}
		}
	}

	return "", fmt.Errorf("call failed after %d attempts: %w", e.cfg.MaxAttempts, lastErr)
}

// sleepCtx blocks for d or until ctx is cancelled.
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
