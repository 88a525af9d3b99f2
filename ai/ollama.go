package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"storygen/backend/pkg/logger"
)

// OllamaClient completes prompts against a local Ollama server.
type OllamaClient struct {
	client *http.Client
	url    string
	model  string
	log    *logger.Logger
}

func NewOllamaClient(url, model string, timeout time.Duration, log *logger.Logger) *OllamaClient {
	if url == "" {
		url = "http://localhost:11434/api/generate" // fallback
	}
	return &OllamaClient{
		client: newHTTPClient(timeout),
		url:    url,
		model:  model,
		log:    log,
	}
}

// Complete sends one non-streaming generate request and returns the model
// output.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	c.log.Debug("Sending Ollama request", "model", c.model, "prompt_len", len(prompt))

	body, err := postJSON(ctx, c.client, "ollama", c.url, GenerateRequest{Model: c.model, Prompt: prompt}, nil)
	if err != nil {
		c.log.LogError(err, "Ollama request failed", "model", c.model)
		return "", err
	}

	var resp GenerateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	if resp.Error != "" {
		return "", errors.New(resp.Error)
	}
	c.log.Debug("Ollama response received", "model", c.model, "duration", time.Since(start), "response_len", len(resp.Response))
	return resp.Response, nil
}
