package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"storygen/backend/pkg/logger"
)

// GeminiClient completes prompts with a Gemini model.
type GeminiClient struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	name    string
	timeout time.Duration
	log     *logger.Logger
}

func NewGeminiClient(ctx context.Context, apiKey, model string, timeout time.Duration, log *logger.Logger) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create generative client: %w", err)
	}
	return &GeminiClient{
		client:  client,
		model:   client.GenerativeModel(model),
		name:    model,
		timeout: timeout,
		log:     log,
	}, nil
}

// Complete runs a single GenerateContent call.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	c.log.Debug("Sending Gemini request", "model", c.name, "prompt_len", len(prompt))
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		c.log.LogError(err, "Gemini request failed", "model", c.name)
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	return responseText(resp), nil
}

func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				b.WriteString(string(txt))
			}
		}
	}
	return b.String()
}
