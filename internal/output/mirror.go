package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// Mirror uploads finished artifacts to a GCS bucket for off-machine backup of
// long runs. Uploads are conditional on the object not existing, so re-runs
// over already-mirrored documents are no-ops.
type Mirror struct {
	client *storage.Client
	bucket string
	logger *slog.Logger
}

// NewMirror connects to GCS for the given bucket.
func NewMirror(ctx context.Context, bucket string, logger *slog.Logger) (*Mirror, error) {
	if bucket == "" {
		return nil, fmt.Errorf("mirror bucket cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &Mirror{client: client, bucket: bucket, logger: logger}, nil
}

// Upload writes content to the bucket with bounded retries. An object that
// already exists counts as success.
func (m *Mirror) Upload(ctx context.Context, objectName, content string) error {
	const maxRetries = 4
	backoff := 1 * time.Second
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		err := m.uploadOnce(ctx, objectName, content)
		if err == nil {
			return nil
		}
		lastErr = err
		m.logger.Warn("Mirror upload failed, will retry.",
			"gcsObject", objectName, "attempt", i+1, "maxRetries", maxRetries,
			"backoff", backoff.String(), "error", err)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("mirror upload for %s failed after all retries: %w", objectName, lastErr)
}

func (m *Mirror) uploadOnce(ctx context.Context, objectName, content string) error {
	writeCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
	defer cancel()

	writer := m.client.Bucket(m.bucket).Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(writeCtx)
	if _, err := io.Copy(writer, strings.NewReader(content)); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			m.logger.Info("Mirror object already exists, skipping.", "gcsObject", objectName)
			return nil
		}
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			m.logger.Info("Mirror object already exists, skipping.", "gcsObject", objectName)
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 412
}

// Close releases the storage client.
func (m *Mirror) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}
