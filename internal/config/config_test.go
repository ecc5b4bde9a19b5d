package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRun() *Run {
	cfg := Default()
	cfg.PDFFolder = "/pdfs"
	cfg.OutputFolder = "/out"
	return cfg
}

func TestDefaultValidatesWithFolders(t *testing.T) {
	assert.NoError(t, validRun().Validate())
}

func TestValidateRequiresFolders(t *testing.T) {
	cfg := Default()
	cfg.OutputFolder = "/out"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.PDFFolder = "/pdfs"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsInvertedRange(t *testing.T) {
	cfg := validRun()
	cfg.Start = 10
	cfg.End = 5
	assert.Error(t, cfg.Validate())

	// End zero means open-ended, never an inverted range.
	cfg.End = 0
	assert.NoError(t, cfg.Validate())
}

func TestValidateBounds(t *testing.T) {
	cfg := validRun()
	cfg.MaxAttempts = 0
	assert.Error(t, cfg.Validate())

	cfg = validRun()
	cfg.DocRetries = 11
	assert.Error(t, cfg.Validate())

	cfg = validRun()
	cfg.MaxImageDimension = 64
	assert.Error(t, cfg.Validate())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
pdf_folder: /data/pdfs
output_folder: /data/out
model: gemini-custom
no_proxy: true
quota_wait_seconds: 60
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/pdfs", cfg.PDFFolder)
	assert.Equal(t, "gemini-custom", cfg.Model)
	assert.Equal(t, 60*time.Second, cfg.QuotaWait())
	// Untouched fields keep their defaults.
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.DocPause())
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pdf_folder: [unclosed"), 0o644))
	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestProxyURL(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultProxy, cfg.ProxyURL())

	cfg.NoProxy = true
	assert.Empty(t, cfg.ProxyURL())
}
