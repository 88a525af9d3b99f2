package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"storygen/backend/pkg/logger"
)

// ImageClient renders prompts through a Hugging Face text-to-image endpoint.
type ImageClient struct {
	client   *http.Client
	url      string
	token    string
	settings TextToImageSettings
	log      *logger.Logger
}

type ImageConfig struct {
	Endpoint       string
	Model          string
	Token          string
	GuidanceScale  float64
	InferenceSteps int
	Timeout        time.Duration
}

func NewImageClient(cfg ImageConfig, log *logger.Logger) *ImageClient {
	if cfg.GuidanceScale <= 0 {
		cfg.GuidanceScale = 7
	}
	if cfg.InferenceSteps <= 0 {
		cfg.InferenceSteps = 30
	}
	return &ImageClient{
		client: newHTTPClient(cfg.Timeout),
		url:    strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Model,
		token:  cfg.Token,
		settings: TextToImageSettings{
			GuidanceScale:     cfg.GuidanceScale,
			NumInferenceSteps: cfg.InferenceSteps,
		},
		log: log,
	}
}

// Generate returns the encoded image for prompt.
func (c *ImageClient) Generate(ctx context.Context, prompt string) ([]byte, error) {
	headers := map[string]string{"Accept": "image/png"}
	if c.token != "" {
		headers["Authorization"] = "Bearer " + c.token
	}
	start := time.Now()
	img, err := postJSON(ctx, c.client, "image inference", c.url, TextToImageRequest{Inputs: prompt, Parameters: c.settings}, headers)
	if err != nil {
		c.log.LogError(err, "Image request failed")
		return nil, err
	}
	if len(img) == 0 {
		return nil, errors.New("image inference returned an empty body")
	}
	c.log.Debug("Image received", "bytes", len(img), "duration", time.Since(start))
	return img, nil
}
