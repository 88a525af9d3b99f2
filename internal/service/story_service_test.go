package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storygen/backend/internal/models"
)

type storyHarness struct {
	svc       *StoryService
	completer *fakeCompleter
	images    *fakeImages
	sessions  *memorySessions
	memory    *CharacterMemory
	dir       string
}

func newStoryHarness(t *testing.T, responses ...string) *storyHarness {
	t.Helper()
	h := &storyHarness{
		completer: &fakeCompleter{responses: responses},
		images:    &fakeImages{},
		sessions:  newMemorySessions(),
		dir:       t.TempDir(),
	}
	log := testLogger()
	var err error
	h.memory, err = NewSharedCharacterMemory(context.Background(), &memoryCharacters{}, CharacterMemoryOptions{}, log)
	require.NoError(t, err)
	h.svc = NewStoryService(h.sessions,
		NewBeatGenerator(h.completer, nil, log),
		h.memory,
		NewRenderOrchestrator(h.images, nil, h.dir, nil, log),
		StoryOptions{MinScenes: 2, MaxScenes: 8, DefaultScenes: 4, ContinuityHints: true},
		nil, log)
	return h
}

func beatsJSON(t *testing.T, prefix string, n int) string {
	t.Helper()
	beats := make([]models.Beat, n)
	for i := range beats {
		beats[i] = models.NewBeat(fmt.Sprintf("%s beat %d about Robo.", prefix, i+1), "Onward", "Back")
	}
	data, err := json.Marshal(beats)
	require.NoError(t, err)
	return string(data)
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func TestStoryScenario(t *testing.T) {
	h := newStoryHarness(t, beatsJSON(t, "Original", 4), beatsJSON(t, "Branched", 4))
	ctx := context.Background()

	sess, err := h.svc.Start(ctx, models.StartStoryRequest{Prompt: "A lonely robot finds a flower", Scenes: intPtr(4)})
	require.NoError(t, err)
	require.Len(t, sess.Beats, 4)
	for _, b := range sess.Beats {
		assert.NotEmpty(t, b.Text)
	}
	assert.Empty(t, sess.Artifacts)
	assert.Equal(t, 0, sess.Cursor)

	video := NewVideoExporter(h.sessions, &fakeNarrator{available: true}, &fakeMuxer{available: true}, h.dir, VideoOptions{}, nil, testLogger())
	_, err = video.Export(ctx, sess.SessionID, VideoOptions{})
	assert.ErrorIs(t, err, ErrPreconditionFailed)
	assert.NoFileExists(t, filepath.Join(h.dir, "video", sess.SessionID+".mp4"))

	branched, err := h.svc.Branch(ctx, models.BranchStoryRequest{SessionID: sess.SessionID, Step: 1, ChoiceIdx: 0})
	require.NoError(t, err)
	assert.Equal(t, "Branched beat 1 about Robo.", branched.Beats[0].Text)

	stored, err := h.svc.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, branched.Beats, stored.Beats)

	paths, err := h.svc.Render(ctx, sess.SessionID)
	require.NoError(t, err)
	require.Len(t, paths, 4)
	for i, p := range paths {
		assert.Equal(t, fmt.Sprintf("%s_scene_%d.png", sess.SessionID, i+1), filepath.Base(p))
	}

	doc := NewDocumentExporter(h.sessions, h.dir, nil, nil, testLogger())
	rec := &recordingWriter{}
	doc.newWriter = func(string) pageWriter { return rec }
	_, err = doc.Export(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, paths, rec.images)
	assert.Len(t, rec.texts, 4)
}

func TestStartRejectsOutOfRangeScenes(t *testing.T) {
	h := newStoryHarness(t, beatsJSON(t, "x", 2))
	for _, n := range []int{1, 9} {
		_, err := h.svc.Start(context.Background(), models.StartStoryRequest{Prompt: "p", Scenes: intPtr(n)})
		assert.ErrorIs(t, err, ErrPreconditionFailed)
	}
	assert.Empty(t, h.completer.prompts)
}

func TestStartDefaultsToFourScenes(t *testing.T) {
	h := newStoryHarness(t, beatsJSON(t, "x", 4))
	sess, err := h.svc.Start(context.Background(), models.StartStoryRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, 4, sess.Config.Scenes)
	assert.Contains(t, h.completer.prompts[0], "Scenes: 4")
}

func TestStartFoldsContinuityHintIntoGuidance(t *testing.T) {
	h := newStoryHarness(t, beatsJSON(t, "x", 2))
	require.NoError(t, h.memory.Reinforce(context.Background(), "Robo", "rusty"))
	guidance := "keep it short"

	sess, err := h.svc.Start(context.Background(), models.StartStoryRequest{Prompt: "p", Scenes: intPtr(2), Guidance: &guidance})
	require.NoError(t, err)
	assert.Contains(t, h.completer.prompts[0], "Guidance: keep it short\nCharacter continuity: Robo: rusty")
	assert.Equal(t, "keep it short", *sess.Config.Guidance)
}

func TestStartBootstrapsCharacters(t *testing.T) {
	h := newStoryHarness(t, beatsJSON(t, "x", 2))
	_, err := h.svc.Start(context.Background(), models.StartStoryRequest{Prompt: "p", Scenes: intPtr(2)})
	require.NoError(t, err)

	var names []string
	for _, r := range h.memory.List() {
		names = append(names, r.Name)
	}
	assert.Contains(t, names, "Robo")
}

func TestBranchMalformedOutputIsNoop(t *testing.T) {
	h := newStoryHarness(t, beatsJSON(t, "Original", 3), "not json at all")
	ctx := context.Background()

	sess, err := h.svc.Start(ctx, models.StartStoryRequest{Prompt: "p", Scenes: intPtr(3)})
	require.NoError(t, err)

	branched, err := h.svc.Branch(ctx, models.BranchStoryRequest{SessionID: sess.SessionID, Step: 0, ChoiceIdx: 1})
	require.NoError(t, err)
	assert.Equal(t, sess.Beats, branched.Beats)
}

func TestBranchKeepsStaleArtifacts(t *testing.T) {
	h := newStoryHarness(t, beatsJSON(t, "Original", 3), beatsJSON(t, "Branched", 2))
	ctx := context.Background()

	sess, err := h.svc.Start(ctx, models.StartStoryRequest{Prompt: "p", Scenes: intPtr(3)})
	require.NoError(t, err)
	paths, err := h.svc.Render(ctx, sess.SessionID)
	require.NoError(t, err)

	branched, err := h.svc.Branch(ctx, models.BranchStoryRequest{SessionID: sess.SessionID, Step: 2, ChoiceIdx: 0})
	require.NoError(t, err)
	assert.Equal(t, paths, branched.Artifacts)
	assert.True(t, branched.ArtifactsStale())
}

func TestBranchValidatesStepAndSession(t *testing.T) {
	h := newStoryHarness(t, beatsJSON(t, "x", 2))
	ctx := context.Background()

	_, err := h.svc.Branch(ctx, models.BranchStoryRequest{SessionID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)

	sess, err := h.svc.Start(ctx, models.StartStoryRequest{Prompt: "p", Scenes: intPtr(2)})
	require.NoError(t, err)
	_, err = h.svc.Branch(ctx, models.BranchStoryRequest{SessionID: sess.SessionID, Step: 2})
	assert.ErrorIs(t, err, ErrPreconditionFailed)
	assert.Len(t, h.completer.prompts, 1)
}

func TestBranchRevisionCompareAndSwap(t *testing.T) {
	h := newStoryHarness(t, beatsJSON(t, "x", 2), beatsJSON(t, "y", 2))
	ctx := context.Background()

	sess, err := h.svc.Start(ctx, models.StartStoryRequest{Prompt: "p", Scenes: intPtr(2)})
	require.NoError(t, err)

	_, err = h.svc.Branch(ctx, models.BranchStoryRequest{SessionID: sess.SessionID, Revision: int64Ptr(5)})
	assert.ErrorIs(t, err, ErrRevisionConflict)

	branched, err := h.svc.Branch(ctx, models.BranchStoryRequest{SessionID: sess.SessionID, Revision: int64Ptr(0)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), branched.Revision)
}

func TestRenderFailureLeavesSessionUntouched(t *testing.T) {
	h := newStoryHarness(t, beatsJSON(t, "x", 3))
	ctx := context.Background()

	sess, err := h.svc.Start(ctx, models.StartStoryRequest{Prompt: "p", Scenes: intPtr(3)})
	require.NoError(t, err)
	h.images.failOn = 2

	_, err = h.svc.Render(ctx, sess.SessionID)
	assert.ErrorIs(t, err, ErrCollaboratorFailure)

	stored, err := h.svc.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Empty(t, stored.Artifacts)
	assert.Equal(t, int64(0), stored.Revision)
}

func TestReplaceBeatsRoundTripKeepsArtifacts(t *testing.T) {
	h := newStoryHarness(t, beatsJSON(t, "x", 2))
	ctx := context.Background()

	sess, err := h.svc.Start(ctx, models.StartStoryRequest{Prompt: "p", Scenes: intPtr(2)})
	require.NoError(t, err)
	require.NoError(t, h.svc.ReplaceArtifacts(ctx, sess.SessionID, []string{"a.png", "b.png"}))

	replacement := []models.Beat{models.NewBeat("Only beat")}
	require.NoError(t, h.svc.ReplaceBeats(ctx, sess.SessionID, replacement))

	got, err := h.svc.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, replacement, got.Beats)
	assert.Equal(t, []string{"a.png", "b.png"}, got.Artifacts)
}

func TestSetCursorClamps(t *testing.T) {
	h := newStoryHarness(t, beatsJSON(t, "x", 3))
	ctx := context.Background()

	sess, err := h.svc.Start(ctx, models.StartStoryRequest{Prompt: "p", Scenes: intPtr(3)})
	require.NoError(t, err)

	got, err := h.svc.SetCursor(ctx, sess.SessionID, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Cursor)

	got, err = h.svc.SetCursor(ctx, sess.SessionID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Cursor)
}

func TestCoCreator(t *testing.T) {
	completer := &fakeCompleter{responses: []string{`["Who is the hero?","Where?"]`, "no list here", "  A better prompt.  "}}
	c := NewCoCreator(completer, testLogger())
	ctx := context.Background()

	q, err := c.Clarify(ctx, "robot")
	require.NoError(t, err)
	assert.Equal(t, []string{"Who is the hero?", "Where?"}, q)

	q, err = c.Clarify(ctx, "robot")
	require.NoError(t, err)
	assert.Equal(t, DefaultClarifiers, q)

	p, err := c.Upgrade(ctx, "robot", []string{"sci-fi", "hopeful"})
	require.NoError(t, err)
	assert.Equal(t, "A better prompt.", p)
	assert.Contains(t, completer.prompts[2], "Answers: sci-fi | hopeful")
}
