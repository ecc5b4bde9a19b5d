// Package gemini adapts the Vertex AI Gemini API for page-level OCR. It owns
// credential activation (one underlying client per API key) and translates
// service failures into structured error kinds.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
)

// --- OCR Model Prompts ---
const OCRSystemPrompt = "You are a document parser. Your task is to recognize the full content of a scanned document page and transcribe it into markdown format. Accuracy, detail, and information preservation are of utmost importance."
const OCRUserPrompt = `You will be provided with one scanned page of a document. Recognize its content precisely, including Chinese, Japanese, and English text:

1. Preserve the original layout and formatting.
2. Keep mixed Chinese/Japanese content in the original language.
3. Output everything in Markdown format.
4. Replace figures and photographs with a short descriptive text.

Return ONLY the transcribed Markdown content. Do not include any preambles or surround the output with backtick fences unless the content itself is a code block.`

// Config holds the explicit run configuration for the client. There is no
// hidden process-wide state: proxy and model selection live here.
type Config struct {
	ProjectID string
	Region    string
	Model     string
	// ProxyURL routes the underlying gRPC connection through an HTTP CONNECT
	// proxy when non-empty.
	ProxyURL string
}

// Client is a Gemini client bound to whichever credential is currently
// active. UseCredential swaps the underlying connection; all subsequent calls
// use the new key.
type Client struct {
	cfg    Config
	base   *genai.Client
	model  *genai.GenerativeModel
	logger *slog.Logger
}

// NewClient creates an unbound client. No connection exists until
// UseCredential activates a key.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("NewClient: model name cannot be empty")
	}
	if cfg.Region == "" {
		cfg.Region = "us-central1"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, logger: logger}, nil
}

// UseCredential tears down the current connection and builds a new one
// authenticated with key. It is the activation hook for the credential pool.
func (c *Client) UseCredential(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("UseCredential: key cannot be empty")
	}

	opts := []option.ClientOption{option.WithAPIKey(key)}
	if c.cfg.ProxyURL != "" {
		dialOpt, err := proxyDialOption(c.cfg.ProxyURL)
		if err != nil {
			return fmt.Errorf("failed to configure proxy %s: %w", c.cfg.ProxyURL, err)
		}
		opts = append(opts, dialOpt)
	}

	baseClient, err := genai.NewClient(ctx, c.cfg.ProjectID, c.cfg.Region, opts...)
	if err != nil {
		return fmt.Errorf("genai.NewClient: %w", err)
	}

	model := baseClient.GenerativeModel(c.cfg.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(OCRSystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr[float32](0.0),
		TopP:            genai.Ptr[float32](0.95),
		TopK:            genai.Ptr[int32](32),
		MaxOutputTokens: genai.Ptr[int32](4096),
	}
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	if c.base != nil {
		if err := c.base.Close(); err != nil {
			c.logger.Warn("Failed to close previous client connection.", "error", err)
		}
	}
	c.base = baseClient
	c.model = model
	return nil
}

// RecognizePage runs one OCR call for a single page payload and returns the
// recognized markdown. Failures carry a structured *CallError.
func (c *Client) RecognizePage(ctx context.Context, mimeType string, data []byte, pageNumber int) (string, error) {
	if c.model == nil {
		return "", fmt.Errorf("RecognizePage: no credential activated")
	}

	parts := []genai.Part{
		genai.Text(OCRUserPrompt),
		genai.Blob{MIMEType: mimeType, Data: data},
		genai.Text(fmt.Sprintf("This is page %d.", pageNumber)),
	}

	resp, err := c.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", wrap(fmt.Errorf("failed to generate content from gemini: %w", err))
	}

	markdown := extractMarkdown(resp)

	// Sanity check for LLM refusal. A refusal will not improve on retry with
	// the same payload.
	refusalPhrases := []string{
		"i am unable to",
		"i cannot fulfill",
		"i cannot answer",
		"i cannot provide",
		"as a large language model",
	}
	lowerMarkdown := strings.ToLower(markdown)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lowerMarkdown, phrase) {
			err := fmt.Errorf("gemini response indicates refusal for page %d", pageNumber)
			c.logger.Error("LLM refusal detected.", "page", pageNumber, "response", markdown)
			return "", &CallError{Kind: KindInvalidInput, Err: err}
		}
	}

	if markdown == "" {
		c.logger.Warn("No text extracted from response. Treating as empty page.", "page", pageNumber)
	}
	return markdown, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c.base != nil {
		return c.base.Close()
	}
	return nil
}

// extractMarkdown parses the model's response and robustly extracts text content.
func extractMarkdown(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}

	var markdown strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			markdown.WriteString(string(txt))
		}
	}

	contentStr := strings.TrimSpace(markdown.String())
	contentStr = strings.TrimPrefix(contentStr, "```markdown")
	contentStr = strings.TrimPrefix(contentStr, "```")
	contentStr = strings.TrimSuffix(contentStr, "```")
	return strings.TrimSpace(contentStr)
}
