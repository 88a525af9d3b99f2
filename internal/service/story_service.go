package service

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"

	"storygen/backend/internal/models"
	"storygen/backend/internal/repository"
	"storygen/backend/pkg/logger"
	"storygen/backend/shared/observability"
)

// StoryOptions bound session creation.
type StoryOptions struct {
	MinScenes       int
	MaxScenes       int
	DefaultScenes   int
	ContinuityHints bool
}

// StoryService runs the session lifecycle: start, branch, render and the
// presentation cursor. Every write replaces the whole record.
type StoryService struct {
	sessions   repository.SessionRepository
	generator  *BeatGenerator
	memory     *CharacterMemory
	renderer   *RenderOrchestrator
	opts       StoryOptions
	metrics    *observability.StoryMetrics
	log        *logger.Logger
	newSession func() string
}

func NewStoryService(sessions repository.SessionRepository, generator *BeatGenerator, memory *CharacterMemory,
	renderer *RenderOrchestrator, opts StoryOptions, metrics *observability.StoryMetrics, log *logger.Logger) *StoryService {
	if opts.MinScenes <= 0 {
		opts.MinScenes = 2
	}
	if opts.MaxScenes < opts.MinScenes {
		opts.MaxScenes = 8
	}
	if opts.DefaultScenes < opts.MinScenes || opts.DefaultScenes > opts.MaxScenes {
		opts.DefaultScenes = opts.MinScenes
	}
	return &StoryService{
		sessions:   sessions,
		generator:  generator,
		memory:     memory,
		renderer:   renderer,
		opts:       opts,
		metrics:    metrics,
		log:        log,
		newSession: uuid.NewString,
	}
}

// Start generates the opening beats for a premise and persists a new
// session with no artifacts and the cursor at zero.
func (s *StoryService) Start(ctx context.Context, req models.StartStoryRequest) (*models.Session, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, precondition("prompt must not be empty")
	}
	scenes := s.opts.DefaultScenes
	if req.Scenes != nil {
		scenes = *req.Scenes
	}
	if scenes < s.opts.MinScenes || scenes > s.opts.MaxScenes {
		return nil, precondition(fmt.Sprintf("scenes must be between %d and %d", s.opts.MinScenes, s.opts.MaxScenes))
	}

	cfg := models.StoryConfig{
		Prompt:   req.Prompt,
		Genre:    req.Genre,
		Tone:     req.Tone,
		Audience: req.Audience,
		Scenes:   scenes,
		Guidance: req.Guidance,
	}

	guidance := req.Guidance
	if s.opts.ContinuityHints && s.memory != nil {
		base := ""
		if guidance != nil {
			base = *guidance
		}
		if hinted := s.memory.ContinuityHint(base); hinted != base {
			guidance = &hinted
		}
	}

	beats, err := s.generator.GenerateBeats(ctx, GenerateParams{
		Premise:  req.Prompt,
		Genre:    req.Genre,
		Tone:     req.Tone,
		Audience: req.Audience,
		Count:    scenes,
		Guidance: guidance,
	})
	if err != nil {
		return nil, err
	}

	s.bootstrap(ctx, beats)

	sess := &models.Session{
		SessionID: s.newSession(),
		Config:    cfg,
		Beats:     beats,
		Artifacts: []string{},
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		s.log.LogError(err, "Failed to persist new session")
		return nil, err
	}

	s.metrics.SessionCreated(ctx)
	s.log.WithSessionID(sess.SessionID).Info("Session started", "scenes", scenes, "beats", len(beats))
	return sess, nil
}

// Branch replaces the beats of a session with a continuation from step
// having taken choice choiceIdx. Artifacts are left as they were. When the
// generator output is unusable the beats come back unchanged. A non-nil
// revision must match the stored one.
func (s *StoryService) Branch(ctx context.Context, req models.BranchStoryRequest) (*models.Session, error) {
	sess, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return nil, storeError(err, req.SessionID)
	}
	expected := repository.AnyRevision
	if req.Revision != nil {
		if *req.Revision != sess.Revision {
			return nil, fmt.Errorf("%w: expected revision %d, stored %d", ErrRevisionConflict, *req.Revision, sess.Revision)
		}
		expected = *req.Revision
	}
	if req.Step < 0 || req.Step >= len(sess.Beats) {
		return nil, precondition(fmt.Sprintf("step %d is outside the %d current beats", req.Step, len(sess.Beats)))
	}

	log := s.log.WithSessionID(sess.SessionID)

	beats, err := s.generator.ContinueBranch(ctx, sess.Beats, req.Step, req.ChoiceIdx)
	if err != nil {
		return nil, err
	}
	changed := !reflect.DeepEqual(beats, sess.Beats)
	s.bootstrap(ctx, beats)

	if err := s.replaceBeats(ctx, sess, beats, expected); err != nil {
		return nil, err
	}

	s.metrics.Branch(ctx, changed)
	log.Info("Session branched", "step", req.Step, "choice_idx", req.ChoiceIdx, "changed", changed,
		"stale_artifacts", sess.ArtifactsStale())
	return sess, nil
}

// Render illustrates the current beats and stores the artifact list only
// when every scene rendered.
func (s *StoryService) Render(ctx context.Context, sessionID string) ([]string, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, storeError(err, sessionID)
	}
	if len(sess.Beats) == 0 {
		return nil, precondition("session has no beats to render")
	}
	paths, err := s.renderer.RenderScenes(ctx, sess.SessionID, sess.Beats)
	if err != nil {
		return nil, err
	}

	if err := s.replaceArtifacts(ctx, sess, paths); err != nil {
		return nil, err
	}
	return paths, nil
}

// Get returns the stored session.
func (s *StoryService) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, storeError(err, sessionID)
	}
	return sess, nil
}

// SetCursor moves the presentation cursor, clamped to the beat range.
func (s *StoryService) SetCursor(ctx context.Context, sessionID string, cursor int) (*models.Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, storeError(err, sessionID)
	}
	if cursor > len(sess.Beats)-1 {
		cursor = len(sess.Beats) - 1
	}
	if cursor < 0 {
		cursor = 0
	}
	sess.Cursor = cursor
	if err := s.sessions.Save(ctx, sess, repository.AnyRevision); err != nil {
		return nil, storeError(err, sessionID)
	}
	return sess, nil
}

// ReplaceBeats overwrites the beat sequence of a session. Artifacts are not
// touched and may describe the previous beats afterwards.
func (s *StoryService) ReplaceBeats(ctx context.Context, sessionID string, beats []models.Beat) error {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return storeError(err, sessionID)
	}
	return s.replaceBeats(ctx, sess, beats, repository.AnyRevision)
}

// ReplaceArtifacts overwrites the artifact list of a session. Callers pass
// the output of a full render of the current beats.
func (s *StoryService) ReplaceArtifacts(ctx context.Context, sessionID string, artifacts []string) error {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return storeError(err, sessionID)
	}
	return s.replaceArtifacts(ctx, sess, artifacts)
}

func (s *StoryService) replaceArtifacts(ctx context.Context, sess *models.Session, artifacts []string) error {
	sess.Artifacts = artifacts
	if err := s.sessions.Save(ctx, sess, repository.AnyRevision); err != nil {
		return storeError(err, sess.SessionID)
	}
	return nil
}

func (s *StoryService) replaceBeats(ctx context.Context, sess *models.Session, beats []models.Beat, expected int64) error {
	sess.Beats = beats
	if err := s.sessions.Save(ctx, sess, expected); err != nil {
		return storeError(err, sess.SessionID)
	}
	return nil
}

// bootstrap feeds new beats to the character table. A failure to persist
// the table does not fail the story operation.
func (s *StoryService) bootstrap(ctx context.Context, beats []models.Beat) {
	if s.memory == nil {
		return
	}
	if err := s.memory.Bootstrap(ctx, beats); err != nil {
		s.log.LogError(err, "Character bootstrap failed")
	}
}
