// Package config defines the explicit run configuration for the extraction
// pipeline. Every tunable is carried here and handed to components at
// construction; nothing reads hidden process-wide state.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultModel matches the vision-capable model the tool was tuned on.
	DefaultModel = "gemini-2.0-pro-exp-02-05"
	// DefaultProxy is the conventional local forward proxy. --no-proxy
	// disables it.
	DefaultProxy = "http://localhost:7890"
	// DefaultKeyFile is consulted when no credential flag is given.
	DefaultKeyFile = "key.txt"
)

// Run holds the full configuration for one extraction run. Flags override
// values loaded from a YAML file.
type Run struct {
	APIKey  string `yaml:"api_key"`
	KeyFile string `yaml:"key_file"`

	PDFFolder    string `yaml:"pdf_folder" validate:"required"`
	OutputFolder string `yaml:"output_folder" validate:"required"`

	// Start and End bound the half-open document index range [Start, End).
	Start int `yaml:"start" validate:"min=0"`
	End   int `yaml:"end" validate:"min=0"`

	Model     string `yaml:"model" validate:"required"`
	ProjectID string `yaml:"project_id"`
	Region    string `yaml:"region"`
	Proxy     string `yaml:"proxy"`
	NoProxy   bool   `yaml:"no_proxy"`
	Resume    bool   `yaml:"resume"`

	MirrorBucket string `yaml:"mirror_bucket"`

	MaxAttempts int `yaml:"max_attempts" validate:"min=1,max=10"`
	DocRetries  int `yaml:"doc_retries" validate:"min=1,max=10"`

	// Pacing and backoff, in seconds. Fixed delays chosen to stay under the
	// service's rate ceiling.
	DocPauseSeconds      int `yaml:"doc_pause_seconds" validate:"min=0"`
	PagePauseSeconds     int `yaml:"page_pause_seconds" validate:"min=0"`
	QuotaWaitSeconds     int `yaml:"quota_wait_seconds" validate:"min=1"`
	TransientStepSeconds int `yaml:"transient_step_seconds" validate:"min=1"`
	UnknownStepSeconds   int `yaml:"unknown_step_seconds" validate:"min=1"`

	// MaxImageDimension bounds the longer side of a page image before it is
	// submitted to the service.
	MaxImageDimension int `yaml:"max_image_dimension" validate:"min=128"`
}

// Default returns the configuration the tool ships with.
func Default() *Run {
	return &Run{
		Model:                DefaultModel,
		Region:               "us-central1",
		Proxy:                DefaultProxy,
		MaxAttempts:          5,
		DocRetries:           3,
		DocPauseSeconds:      30,
		PagePauseSeconds:     10,
		QuotaWaitSeconds:     120,
		TransientStepSeconds: 30,
		UnknownStepSeconds:   15,
		MaxImageDimension:    1024,
	}
}

// LoadFile reads a YAML file over the defaults.
func LoadFile(path string) (*Run, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration before any document is touched.
func (c *Run) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.End > 0 && c.End < c.Start {
		return fmt.Errorf("invalid configuration: end index %d is before start index %d", c.End, c.Start)
	}
	return nil
}

// ProxyURL resolves the effective proxy address, empty when disabled.
func (c *Run) ProxyURL() string {
	if c.NoProxy {
		return ""
	}
	return c.Proxy
}

func (c *Run) DocPause() time.Duration      { return time.Duration(c.DocPauseSeconds) * time.Second }
func (c *Run) PagePause() time.Duration     { return time.Duration(c.PagePauseSeconds) * time.Second }
func (c *Run) QuotaWait() time.Duration     { return time.Duration(c.QuotaWaitSeconds) * time.Second }
func (c *Run) TransientStep() time.Duration { return time.Duration(c.TransientStepSeconds) * time.Second }
func (c *Run) UnknownStep() time.Duration   { return time.Duration(c.UnknownStepSeconds) * time.Second }
