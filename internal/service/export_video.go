package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storygen/backend/internal/models"
	"storygen/backend/internal/repository"
	"storygen/backend/pkg/logger"
	"storygen/backend/shared/observability"
)

// Narrator synthesizes speech for a whole text.
type Narrator interface {
	Available() bool
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// VideoOptions control the slideshow timing. Zero values take the
// exporter defaults.
type VideoOptions struct {
	FPS         int
	PerSceneSec float64
}

// VideoExporter composes a rendered session into a narrated slideshow.
type VideoExporter struct {
	sessions  repository.SessionRepository
	narrator  Narrator
	muxer     Muxer
	outputDir string
	defaults  VideoOptions
	metrics   *observability.StoryMetrics
	log       *logger.Logger
}

func NewVideoExporter(sessions repository.SessionRepository, narrator Narrator, muxer Muxer, outputDir string,
	defaults VideoOptions, metrics *observability.StoryMetrics, log *logger.Logger) *VideoExporter {
	if defaults.FPS <= 0 {
		defaults.FPS = 24
	}
	if defaults.PerSceneSec <= 0 {
		defaults.PerSceneSec = 5
	}
	return &VideoExporter{
		sessions:  sessions,
		narrator:  narrator,
		muxer:     muxer,
		outputDir: outputDir,
		defaults:  defaults,
		metrics:   metrics,
		log:       log,
	}
}

// Export writes {id}.mp4 under the video directory and returns its path.
// Missing capabilities are reported before the session is read, and a
// session with no rendered image on disk fails before any narration call.
func (e *VideoExporter) Export(ctx context.Context, sessionID string, opts VideoOptions) (string, error) {
	ctx, span := tracer.Start(ctx, "VideoExporter.Export",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()

	path, err := e.export(ctx, sessionID, opts)
	e.metrics.Export(ctx, "video", outcome(err))
	if err != nil {
		span.RecordError(err)
	}
	return path, err
}

func (e *VideoExporter) export(ctx context.Context, sessionID string, opts VideoOptions) (string, error) {
	if e.narrator == nil || !e.narrator.Available() {
		return "", unavailable("narration synthesis", "Set ELEVENLABS_API_KEY to enable narration")
	}
	if e.muxer == nil || !e.muxer.Available() {
		return "", unavailable("video muxing", "ffmpeg binary not found on PATH")
	}
	if opts.FPS <= 0 {
		opts.FPS = e.defaults.FPS
	}
	if opts.PerSceneSec <= 0 {
		opts.PerSceneSec = e.defaults.PerSceneSec
	}

	log := e.log.WithSessionID(sessionID)

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", storeError(err, sessionID)
	}
	images := existingArtifacts(sess.Artifacts)
	if len(images) == 0 {
		return "", precondition("no images available; render first")
	}

	dir := filepath.Join(e.outputDir, "video")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create video dir: %w", err)
	}

	audio, err := e.narrate(ctx, sess)
	if err != nil {
		log.LogError(err, "Narration failed")
		return "", err
	}
	audioPath := filepath.Join(dir, sessionID+".mp3")
	if err := os.WriteFile(audioPath, audio, 0o644); err != nil {
		return "", fmt.Errorf("write narration: %w", err)
	}

	manifestPath := filepath.Join(dir, sessionID+"_inputs.txt")
	if err := os.WriteFile(manifestPath, []byte(ConcatManifest(images, opts.PerSceneSec)), 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}

	out := filepath.Join(dir, sessionID+".mp4")
	job := MuxJob{Manifest: manifestPath, Audio: audioPath, Output: out, FPS: opts.FPS}
	log.Debug("Muxing video", "images", len(images), "fps", opts.FPS, "per_scene_sec", opts.PerSceneSec)
	if err := e.muxer.Mux(ctx, job); err != nil {
		log.LogError(err, "Muxing failed")
		return "", err
	}

	log.Info("Exported video", "path", out)
	return filepath.ToSlash(out), nil
}

func (e *VideoExporter) narrate(ctx context.Context, sess *models.Session) ([]byte, error) {
	text := strings.Join(models.BeatTexts(sess.Beats), "\n")
	audio, err := e.narrator.Synthesize(ctx, text)
	if err != nil {
		return nil, &CollaboratorError{Collaborator: "narration synthesis", Diagnostic: err.Error(), Err: err}
	}
	return audio, nil
}

// existingArtifacts keeps the artifacts present on disk as absolute paths,
// since the concat demuxer resolves relative entries against the manifest.
func existingArtifacts(artifacts []string) []string {
	var out []string
	for _, a := range artifacts {
		if !fileExists(a) {
			continue
		}
		if abs, err := filepath.Abs(a); err == nil {
			a = abs
		}
		out = append(out, a)
	}
	return out
}
