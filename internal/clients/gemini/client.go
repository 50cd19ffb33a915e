// Package gemini answers distributor chat questions through the Google Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/bobmcallan/mfdesk/internal/common"
	"github.com/bobmcallan/mfdesk/internal/interfaces"
)

const (
	DefaultModel = "gemini-2.0-flash"

	// systemInstruction keeps replies scoped to mutual-fund distribution.
	systemInstruction = "You assist Indian mutual fund distributors. " +
		"Answer briefly and in plain language. " +
		"Use the supplied reference passages when they are relevant and never invent scheme data."
)

var errNoContent = errors.New("no content generated")

// Client is a thin wrapper over genai.Client bound to one model.
type Client struct {
	client      *genai.Client
	model       string
	temperature float32
	logger      *common.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithModel overrides DefaultModel. Empty values are ignored.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) ClientOption {
	return func(c *Client) {
		c.temperature = t
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the Gemini API backend.
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c := &Client{
		client:      genaiClient,
		model:       DefaultModel,
		temperature: 0.2,
		logger:      common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Model reports the model replies are generated with.
func (c *Client) Model() string { return c.model }

// GenerateContent sends prompt as a single user turn and returns the joined text parts.
func (c *Client) GenerateContent(ctx context.Context, prompt string) (string, error) {
	c.logger.Debug().Str("model", c.model).Int("prompt_len", len(prompt)).Msg("Generating chat reply")

	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), c.generateConfig())
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return extractTextFromResponse(result)
}

func (c *Client) generateConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		Temperature:       genai.Ptr(c.temperature),
	}
}

func extractTextFromResponse(result *genai.GenerateContentResponse) (string, error) {
	if result == nil || len(result.Candidates) == 0 {
		return "", errNoContent
	}
	content := result.Candidates[0].Content
	if content == nil {
		return "", errNoContent
	}

	var sb strings.Builder
	for _, part := range content.Parts {
		if part != nil && !part.Thought {
			sb.WriteString(part.Text)
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errNoContent
	}
	return text, nil
}

var _ interfaces.GeminiClient = (*Client)(nil)
