package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storygen/backend/internal/models"
	"storygen/backend/pkg/resilience"
)

func fourBeats() []models.Beat {
	return []models.Beat{
		models.NewBeat("A lonely robot wanders.", "Search", "Rest"),
		models.NewBeat("It finds a flower.", "Water it", "Leave"),
		models.NewBeat("The flower wilts.", "Save it"),
		models.NewBeat("Spring returns."),
	}
}

func TestRenderScenesOnePathPerBeatInOrder(t *testing.T) {
	dir := t.TempDir()
	images := &fakeImages{}
	r := NewRenderOrchestrator(images, nil, dir, nil, testLogger())

	paths, err := r.RenderScenes(context.Background(), "abc", fourBeats())
	require.NoError(t, err)
	require.Len(t, paths, 4)
	for i, p := range paths {
		assert.Equal(t, SceneArtifactName("abc", i+1), filepath.Base(p))
		assert.FileExists(t, p)
	}

	require.Len(t, images.calls, 4)
	assert.Equal(t, "It finds a flower.\n\nIllustration style: "+StyleHint, images.calls[1])
}

func TestRenderScenesFailureReturnsNothing(t *testing.T) {
	dir := t.TempDir()
	images := &fakeImages{failOn: 3}
	r := NewRenderOrchestrator(images, nil, dir, nil, testLogger())

	paths, err := r.RenderScenes(context.Background(), "abc", fourBeats())
	require.Error(t, err)
	assert.Nil(t, paths)
	assert.ErrorIs(t, err, ErrCollaboratorFailure)
	assert.Contains(t, err.Error(), "model overloaded")
	assert.Len(t, images.calls, 3)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRenderScenesOverwritesPriorArtifacts(t *testing.T) {
	dir := t.TempDir()
	r := NewRenderOrchestrator(&fakeImages{payload: []byte("first")}, nil, dir, nil, testLogger())
	_, err := r.RenderScenes(context.Background(), "s1", fourBeats()[:2])
	require.NoError(t, err)

	r = NewRenderOrchestrator(&fakeImages{payload: []byte("second")}, nil, dir, nil, testLogger())
	paths, err := r.RenderScenes(context.Background(), "s1", fourBeats()[:2])
	require.NoError(t, err)

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestRenderScenesOpenCircuitIsUnavailable(t *testing.T) {
	breaker := resilience.NewCircuitBreaker(resilience.Config{Name: "images", FailureThreshold: 1, CoolDown: time.Hour}, testLogger())
	images := &fakeImages{failOn: 1}
	r := NewRenderOrchestrator(images, breaker, t.TempDir(), nil, testLogger())

	_, err := r.RenderScenes(context.Background(), "x", fourBeats())
	assert.ErrorIs(t, err, ErrCollaboratorFailure)

	_, err = r.RenderScenes(context.Background(), "x", fourBeats())
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Len(t, images.calls, 1)
}
