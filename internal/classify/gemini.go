package classify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/efyoos/bellhop/internal/config"
)

const promptTemplate = `Classify this hotel request into EXACTLY one of these categories: housekeeping, maintenance, room_service, reception. Request: "%s". Reply with ONLY the category name, nothing else.`

// geminiAPIVersion is the generateContent API version requests go to.
const geminiAPIVersion = "v1beta"

// Gemini classifies requests with the Gemini generateContent API.
type Gemini struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// GeminiOpts configures a Gemini classifier.
type GeminiOpts struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewGemini creates a Gemini classifier.
func NewGemini(opts GeminiOpts) (*Gemini, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("classify: gemini api key is required")
	}
	if opts.Model == "" {
		opts.Model = "gemini-pro"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    opts.BaseURL,
			APIVersion: geminiAPIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("classify: gemini client: %w", err)
	}
	return &Gemini{client: client, model: opts.Model, logger: opts.Logger}, nil
}

// New returns a Gemini classifier when an API key is configured and the
// keyword classifier otherwise.
func New(cfg config.ClassifierConfig, logger *slog.Logger) (Classifier, error) {
	if cfg.APIKey == "" {
		return Keywords{}, nil
	}
	return NewGemini(GeminiOpts{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL, Logger: logger})
}

// Classify implements Classifier. The returned text is the model's raw
// answer; it has not been normalized.
func (g *Gemini) Classify(ctx context.Context, requestText string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(fmt.Sprintf(promptTemplate, requestText)), nil)
	if err != nil {
		return "", fmt.Errorf("classify: gemini generate content: %w", err)
	}
	answer := resp.Text()
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("classify: gemini returned no answer")
	}
	g.logger.Debug("gemini classified request", "answer", answer)
	return answer, nil
}
