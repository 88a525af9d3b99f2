package repository

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"storygen/backend/internal/models"
	"storygen/backend/pkg/cache"
	"storygen/backend/pkg/logger"
	"storygen/backend/shared/redis"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Session{}, &models.CharacterRecord{}))
	return db
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Output: io.Discard})
}

func sampleSession(id string) *models.Session {
	genre := "fable"
	return &models.Session{
		SessionID: id,
		Config:    models.StoryConfig{Prompt: "A lonely robot finds a flower", Genre: &genre, Scenes: 2},
		Beats: []models.Beat{
			models.NewBeat("Robo wanders.", "Search", "Rest"),
			models.NewBeat("Robo finds a flower."),
		},
		Artifacts: []string{},
	}
}

func TestGormSessionRoundTrip(t *testing.T) {
	repo := NewGormSessionRepository(testDB(t))
	ctx := context.Background()

	s := sampleSession("s1")
	require.NoError(t, repo.Create(ctx, s))

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, s.Beats, got.Beats)
	assert.Equal(t, "fable", *got.Config.Genre)
	assert.Equal(t, int64(0), got.Revision)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormReplaceBeatsKeepsArtifacts(t *testing.T) {
	repo := NewGormSessionRepository(testDB(t))
	ctx := context.Background()

	s := sampleSession("s2")
	require.NoError(t, repo.Create(ctx, s))

	s.Artifacts = []string{"outputs/s2_scene_1.png", "outputs/s2_scene_2.png"}
	require.NoError(t, repo.Save(ctx, s, AnyRevision))

	s.Beats = []models.Beat{models.NewBeat("A new path.", "Go")}
	require.NoError(t, repo.Save(ctx, s, AnyRevision))

	got, err := repo.Get(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, s.Beats, got.Beats)
	assert.Equal(t, []string{"outputs/s2_scene_1.png", "outputs/s2_scene_2.png"}, got.Artifacts)
	assert.Equal(t, int64(2), got.Revision)
	assert.True(t, got.ArtifactsStale())
}

func TestGormSaveRevisionConflict(t *testing.T) {
	repo := NewGormSessionRepository(testDB(t))
	ctx := context.Background()

	s := sampleSession("s3")
	require.NoError(t, repo.Create(ctx, s))
	require.NoError(t, repo.Save(ctx, s, 0))
	assert.Equal(t, int64(1), s.Revision)

	stale := sampleSession("s3")
	err := repo.Save(ctx, stale, 0)
	assert.ErrorIs(t, err, ErrRevisionConflict)

	err = repo.Save(ctx, sampleSession("nope"), 0)
	assert.ErrorIs(t, err, ErrNotFound)
	err = repo.Save(ctx, sampleSession("nope"), AnyRevision)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormCharacterRepositoryKeepsOrderAndFirstSeen(t *testing.T) {
	repo := NewGormCharacterRepository(testDB(t))
	ctx := context.Background()

	records := []models.CharacterRecord{
		{Name: "Zed", Traits: []string{}, FirstSeen: "Zed came first"},
		{Name: "Amy", Traits: []string{"kind"}, FirstSeen: "Amy arrived"},
	}
	require.NoError(t, repo.SaveAll(ctx, records))
	assert.NotZero(t, records[0].Seq)

	records[0].Traits = []string{"grumpy"}
	records[0].FirstSeen = "rewritten"
	records = append(records, models.CharacterRecord{Name: "Bo", Traits: []string{}})
	require.NoError(t, repo.SaveAll(ctx, records))

	loaded, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.Equal(t, []string{"Zed", "Amy", "Bo"}, []string{loaded[0].Name, loaded[1].Name, loaded[2].Name})
	assert.Equal(t, []string{"grumpy"}, loaded[0].Traits)
	assert.Equal(t, "Zed came first", loaded[0].FirstSeen)
}

func TestCachedRepositoryWritesThrough(t *testing.T) {
	backing := NewGormSessionRepository(testDB(t))
	mem := NewMemorySessionCache(cache.Options{})
	defer mem.Close()
	repo := NewCachedSessionRepository(backing, mem, testLogger())
	ctx := context.Background()

	s := sampleSession("c1")
	require.NoError(t, repo.Create(ctx, s))

	cached, ok := mem.Get(ctx, "c1")
	require.True(t, ok)
	assert.Equal(t, s.Beats, cached.Beats)

	s.Cursor = 1
	require.NoError(t, repo.Save(ctx, s, AnyRevision))
	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Cursor)

	// Mutating a returned copy must not leak into the cache.
	got.Beats[0].Text = "tampered"
	again, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Robo wanders.", again.Beats[0].Text)
}

func TestCachedRepositoryDropsEntryOnConflict(t *testing.T) {
	backing := NewGormSessionRepository(testDB(t))
	mem := NewMemorySessionCache(cache.Options{})
	defer mem.Close()
	repo := NewCachedSessionRepository(backing, mem, testLogger())
	ctx := context.Background()

	s := sampleSession("c2")
	require.NoError(t, repo.Create(ctx, s))
	require.NoError(t, backing.Save(ctx, sampleSession("c2"), AnyRevision))

	err := repo.Save(ctx, s, 0)
	assert.ErrorIs(t, err, ErrRevisionConflict)
	_, ok := mem.Get(ctx, "c2")
	assert.False(t, ok)
}

func TestRedisSessionCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewRedisClient(redis.Options{Addr: mr.Addr()})
	defer client.Close()
	c := NewRedisSessionCache(client, 0, testLogger())
	ctx := context.Background()

	_, ok := c.Get(ctx, "r1")
	assert.False(t, ok)

	s := sampleSession("r1")
	s.Beats = append(s.Beats, malformedBeat(t))
	c.Set(ctx, s)

	got, ok := c.Get(ctx, "r1")
	require.True(t, ok)
	assert.Equal(t, s.Beats[0], got.Beats[0])
	assert.True(t, got.Beats[2].Malformed())

	c.Delete(ctx, "r1")
	_, ok = c.Get(ctx, "r1")
	assert.False(t, ok)
}

func malformedBeat(t *testing.T) models.Beat {
	t.Helper()
	var b models.Beat
	require.NoError(t, b.UnmarshalJSON([]byte(`{"prose":"odd"}`)))
	return b
}
