package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"sync"

	"storygen/backend/internal/models"
	"storygen/backend/internal/repository"
	"storygen/backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "debug", Output: io.Discard})
}

// fakeCompleter replays canned responses in order, repeating the last one.
type fakeCompleter struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", nil
	}
	idx := len(f.prompts) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

// fakeImages returns a small valid PNG and can fail on the nth call.
type fakeImages struct {
	calls   []string
	failOn  int
	payload []byte
}

func (f *fakeImages) Generate(_ context.Context, prompt string) ([]byte, error) {
	f.calls = append(f.calls, prompt)
	if f.failOn > 0 && len(f.calls) == f.failOn {
		return nil, errors.New("model overloaded")
	}
	if f.payload != nil {
		return f.payload, nil
	}
	return tinyPNG(), nil
}

func tinyPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

type fakeNarrator struct {
	available bool
	calls     []string
	err       error
}

func (f *fakeNarrator) Available() bool { return f.available }

func (f *fakeNarrator) Synthesize(_ context.Context, text string) ([]byte, error) {
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("ID3 fake mp3"), nil
}

// fakeMuxer records the job and writes a placeholder output file.
type fakeMuxer struct {
	available bool
	jobs      []MuxJob
	err       error
}

func (f *fakeMuxer) Available() bool { return f.available }

func (f *fakeMuxer) Mux(_ context.Context, job MuxJob) error {
	f.jobs = append(f.jobs, job)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(job.Output, []byte("fake mp4"), 0o644)
}

// memorySessions is an in-process SessionRepository.
type memorySessions struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	saves    int
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: map[string]*models.Session{}}
}

func (m *memorySessions) Create(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.SessionID] = s.Clone()
	return nil
}

func (m *memorySessions) Get(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.Clone(), nil
}

func (m *memorySessions) Save(_ context.Context, s *models.Session, expected int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[s.SessionID]
	if !ok {
		return repository.ErrNotFound
	}
	if expected != repository.AnyRevision && stored.Revision != expected {
		return repository.ErrRevisionConflict
	}
	m.saves++
	s.Revision = stored.Revision + 1
	m.sessions[s.SessionID] = s.Clone()
	return nil
}

// memoryCharacters is an in-process CharacterStore.
type memoryCharacters struct {
	records []models.CharacterRecord
	saves   int
	err     error
}

func (m *memoryCharacters) LoadAll(context.Context) ([]models.CharacterRecord, error) {
	return append([]models.CharacterRecord(nil), m.records...), nil
}

func (m *memoryCharacters) SaveAll(_ context.Context, records []models.CharacterRecord) error {
	if m.err != nil {
		return m.err
	}
	m.saves++
	m.records = append([]models.CharacterRecord(nil), records...)
	return nil
}
