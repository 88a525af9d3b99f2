package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxErrorBody caps how much of a failed response body ends up in an error.
const maxErrorBody = 2048

// GenerateRequest is the Ollama /api/generate payload.
type GenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// GenerateResponse is the non-streaming Ollama reply.
type GenerateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// TextToImageRequest is the Hugging Face inference payload.
type TextToImageRequest struct {
	Inputs     string              `json:"inputs"`
	Parameters TextToImageSettings `json:"parameters"`
}

type TextToImageSettings struct {
	GuidanceScale     float64 `json:"guidance_scale"`
	NumInferenceSteps int     `json:"num_inference_steps"`
}

// TTSRequest is the ElevenLabs text-to-speech payload.
type TTSRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id,omitempty"`
}

// StatusError is returned when an upstream answers with a non-2xx status.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// postJSON sends payload and returns the raw body of a 2xx reply.
func postJSON(ctx context.Context, client *http.Client, service, url string, payload any, headers map[string]string) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", service, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", service, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", service, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", service, err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &StatusError{Service: service, StatusCode: httpResp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	return body, nil
}
