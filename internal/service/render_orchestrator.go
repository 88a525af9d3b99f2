package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storygen/backend/internal/models"
	"storygen/backend/pkg/logger"
	"storygen/backend/pkg/resilience"
	"storygen/backend/shared/observability"
)

// StyleHint is appended to every scene prompt.
const StyleHint = "illustration, cinematic composition, SDXL quality, vivid lighting, storybook"

// ImageGenerator renders one illustration from a prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// SceneArtifactName is the deterministic file name of the illustration for
// the 1-based scene index of a session.
func SceneArtifactName(sessionID string, index int) string {
	return fmt.Sprintf("%s_scene_%d.png", sessionID, index)
}

// ScenePrompt builds the image prompt for a beat.
func ScenePrompt(b models.Beat) string {
	return b.Text + "\n\nIllustration style: " + StyleHint
}

// RenderOrchestrator renders beats into illustration files under dir.
type RenderOrchestrator struct {
	images  ImageGenerator
	breaker *resilience.CircuitBreaker
	dir     string
	metrics *observability.StoryMetrics
	log     *logger.Logger
}

// NewRenderOrchestrator writes artifacts into dir. breaker may be nil.
func NewRenderOrchestrator(images ImageGenerator, breaker *resilience.CircuitBreaker, dir string,
	metrics *observability.StoryMetrics, log *logger.Logger) *RenderOrchestrator {
	return &RenderOrchestrator{images: images, breaker: breaker, dir: dir, metrics: metrics, log: log}
}

// RenderScenes calls the image generator once per beat, in order. Either
// every beat renders and one path per beat is returned, or nothing is
// written and an error is returned. Re-rendering a session overwrites its
// files position by position.
func (r *RenderOrchestrator) RenderScenes(ctx context.Context, sessionID string, beats []models.Beat) ([]string, error) {
	ctx, span := tracer.Start(ctx, "RenderOrchestrator.RenderScenes",
		trace.WithAttributes(attribute.String("session_id", sessionID), attribute.Int("scenes", len(beats))))
	defer span.End()

	log := r.log.WithSessionID(sessionID)
	start := time.Now()

	images := make([][]byte, len(beats))
	for i, b := range beats {
		log.Debug("Rendering scene", "index", i+1)
		img, err := r.generate(ctx, ScenePrompt(b))
		if err != nil {
			span.RecordError(err)
			log.LogError(err, "Scene render failed", "index", i+1)
			return nil, r.classify(err, i+1)
		}
		images[i] = img
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	paths := make([]string, len(beats))
	for i, img := range images {
		path := filepath.Join(r.dir, SceneArtifactName(sessionID, i+1))
		if err := os.WriteFile(path, img, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		paths[i] = filepath.ToSlash(path)
		r.metrics.SceneRendered(ctx)
	}

	r.metrics.RenderFinished(ctx, time.Since(start))
	log.Info("Rendered scenes", "count", len(paths), "duration_ms", time.Since(start).Milliseconds())
	return paths, nil
}

func (r *RenderOrchestrator) generate(ctx context.Context, prompt string) ([]byte, error) {
	if r.breaker == nil {
		return r.images.Generate(ctx, prompt)
	}
	var img []byte
	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		img, err = r.images.Generate(ctx, prompt)
		return err
	})
	return img, err
}

func (r *RenderOrchestrator) classify(err error, index int) error {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return unavailable("image rendering", "The image model has been failing, try again shortly")
	}
	return &CollaboratorError{
		Collaborator: fmt.Sprintf("image rendering (scene %d)", index),
		Diagnostic:   err.Error(),
		Err:          err,
	}
}
