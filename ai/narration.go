package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"storygen/backend/pkg/logger"
)

var ErrNoAPIKey = errors.New("narration api key is not set")

// NarrationClient synthesizes MP3 narration with ElevenLabs.
type NarrationClient struct {
	client  *http.Client
	url     string
	apiKey  string
	modelID string
	log     *logger.Logger
}

func NewNarrationClient(endpoint, voiceID, apiKey string, timeout time.Duration, log *logger.Logger) *NarrationClient {
	return &NarrationClient{
		client:  newHTTPClient(timeout),
		url:     strings.TrimRight(endpoint, "/") + "/" + voiceID,
		apiKey:  apiKey,
		modelID: "eleven_multilingual_v2",
		log:     log,
	}
}

// Available reports whether an API key is configured.
func (c *NarrationClient) Available() bool {
	return c != nil && c.apiKey != ""
}

// Synthesize returns the narration for text as MP3 bytes.
func (c *NarrationClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if !c.Available() {
		return nil, ErrNoAPIKey
	}
	headers := map[string]string{
		"xi-api-key": c.apiKey,
		"Accept":     "audio/mpeg",
	}
	start := time.Now()
	audio, err := postJSON(ctx, c.client, "narration", c.url, TTSRequest{Text: text, ModelID: c.modelID}, headers)
	if err != nil {
		c.log.LogError(err, "Narration request failed")
		return nil, err
	}
	c.log.Debug("Narration received", "bytes", len(audio), "chars", len(text), "duration", time.Since(start))
	return audio, nil
}
