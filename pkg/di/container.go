package di

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"gorm.io/gorm"

	"storygen/backend/ai"
	"storygen/backend/internal/repository"
	"storygen/backend/internal/service"
	"storygen/backend/pkg/cache"
	"storygen/backend/pkg/config"
	"storygen/backend/pkg/health"
	"storygen/backend/pkg/logger"
	"storygen/backend/pkg/resilience"
	"storygen/backend/pkg/secrets"
	"storygen/backend/shared/observability"
	"storygen/backend/shared/redis"
)

// Container holds all the dependencies for the application
type Container struct {
	DB         *gorm.DB
	Logger     *logger.Logger
	Config     *config.Config
	Metrics    *observability.StoryMetrics
	Sessions   repository.SessionRepository
	Characters *repository.GormCharacterRepository
	Memory     *service.CharacterMemory
	Story      *service.StoryService
	Documents  *service.DocumentExporter
	Video      *service.VideoExporter
	CoCreator  *service.CoCreator
	Narration  *ai.NarrationClient
	Muxer      *service.FFmpegMuxer
	Breaker    *resilience.CircuitBreaker
	Health     *health.Checker

	closers []func() error
}

// New creates a new dependency injection container. Backends are chosen
// from cfg; secrets are read through the package-level secrets manager.
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, log *logger.Logger) (*Container, error) {
	c := &Container{
		DB:      db,
		Logger:  log,
		Config:  cfg,
		Metrics: observability.DefaultStoryMetrics(),
		Health:  health.NewChecker(log, 30*time.Second),
	}

	sessions, err := c.sessionRepository(ctx)
	if err != nil {
		return nil, err
	}
	c.Sessions = sessions

	c.Characters = repository.NewGormCharacterRepository(db)
	if err := c.Characters.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate characters: %w", err)
	}
	c.Memory, err = service.NewSharedCharacterMemory(ctx, c.Characters,
		service.CharacterMemoryOptions{SkipStopwords: cfg.Story.SkipStopwords}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load character memory: %w", err)
	}

	completer, err := c.textCompleter(ctx)
	if err != nil {
		return nil, err
	}

	images := ai.NewImageClient(ai.ImageConfig{
		Endpoint:       cfg.Image.Endpoint,
		Model:          cfg.Image.Model,
		Token:          secrets.GetSecretWithDefault(ctx, secrets.HFToken, ""),
		GuidanceScale:  cfg.Image.GuidanceScale,
		InferenceSteps: cfg.Image.InferenceSteps,
		Timeout:        cfg.Image.Timeout,
	}, log)
	c.Breaker = resilience.NewCircuitBreaker(resilience.DefaultConfig("image-rendering"), log)

	c.Narration = ai.NewNarrationClient(cfg.Narration.Endpoint, cfg.Narration.VoiceID,
		secrets.GetSecretWithDefault(ctx, secrets.ElevenLabsAPIKey, ""), cfg.Narration.Timeout, log)
	c.Muxer = service.NewFFmpegMuxer(cfg.Export.FFmpegBinary)

	c.Story = service.NewStoryService(
		c.Sessions,
		service.NewBeatGenerator(completer, c.Metrics, log),
		c.Memory,
		service.NewRenderOrchestrator(images, c.Breaker, cfg.Export.OutputDir, c.Metrics, log),
		service.StoryOptions{
			MinScenes:       cfg.Story.MinScenes,
			MaxScenes:       cfg.Story.MaxScenes,
			DefaultScenes:   cfg.Story.DefaultScenes,
			ContinuityHints: cfg.Story.ContinuityHints,
		},
		c.Metrics, log)
	c.Documents = service.NewDocumentExporter(c.Sessions, cfg.Export.OutputDir, cfg.Export.FontCandidates, c.Metrics, log)
	c.Video = service.NewVideoExporter(c.Sessions, c.Narration, c.Muxer, cfg.Export.OutputDir,
		service.VideoOptions{FPS: cfg.Export.DefaultFPS, PerSceneSec: cfg.Export.DefaultPerSceneSec}, c.Metrics, log)
	c.CoCreator = service.NewCoCreator(completer, log)

	c.registerHealthChecks()
	return c, nil
}

func (c *Container) sessionRepository(ctx context.Context) (repository.SessionRepository, error) {
	var base repository.SessionRepository
	switch c.Config.Store.Backend {
	case "supabase":
		repo, err := repository.NewSupabaseSessionRepository(c.Config.Supabase.URL,
			secrets.GetSecretWithDefault(ctx, secrets.SupabaseKey, c.Config.Supabase.Key), c.Config.Supabase.Table)
		if err != nil {
			return nil, fmt.Errorf("failed to create supabase session store: %w", err)
		}
		base = repo
	case "gorm", "":
		repo := repository.NewGormSessionRepository(c.DB)
		if err := repo.Migrate(); err != nil {
			return nil, fmt.Errorf("failed to migrate sessions: %w", err)
		}
		base = repo
	default:
		return nil, fmt.Errorf("unsupported session store %q", c.Config.Store.Backend)
	}

	switch c.Config.Store.CacheBackend {
	case "memory":
		mem := repository.NewMemorySessionCache(cache.Options{
			TTL:             c.Config.Store.CacheTTL,
			CleanupInterval: time.Minute,
			MaxItems:        c.Config.Store.CacheMaxSize,
		})
		c.closers = append(c.closers, func() error { mem.Close(); return nil })
		return repository.NewCachedSessionRepository(base, mem, c.Logger), nil
	case "redis":
		client := redis.NewRedisClient(redis.Options{
			Addr:     c.Config.Redis.Addr,
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
		})
		if err := client.Ping(ctx); err != nil {
			c.Logger.Warn("Redis unreachable, session cache will miss", "addr", c.Config.Redis.Addr, "error", err.Error())
		}
		c.closers = append(c.closers, client.Close)
		c.Health.RegisterCheck("redis", func(ctx context.Context) (health.Status, string, error) {
			if err := client.Ping(ctx); err != nil {
				return health.StatusDegraded, "Session cache unreachable", err
			}
			return health.StatusUp, "Session cache reachable", nil
		})
		return repository.NewCachedSessionRepository(base, repository.NewRedisSessionCache(client, c.Config.Store.CacheTTL, c.Logger), c.Logger), nil
	}
	return base, nil
}

func (c *Container) textCompleter(ctx context.Context) (service.TextCompleter, error) {
	tg := c.Config.TextGen
	switch tg.Provider {
	case "gemini":
		client, err := ai.NewGeminiClient(ctx, secrets.GetSecretWithDefault(ctx, secrets.GeminiAPIKey, ""), tg.GeminiModel, tg.Timeout, c.Logger)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, client.Close)
		return client, nil
	case "ollama", "":
		if base, err := url.Parse(tg.OllamaURL); err == nil && base.Host != "" {
			base.Path = ""
			c.Health.RegisterAPICheck("ollama", base.String(), &http.Client{Timeout: 3 * time.Second})
		}
		return ai.NewOllamaClient(tg.OllamaURL, tg.OllamaModel, tg.Timeout, c.Logger), nil
	}
	return nil, fmt.Errorf("unsupported text provider %q", tg.Provider)
}

func (c *Container) registerHealthChecks() {
	c.Health.RegisterDatabaseCheck(func(ctx context.Context) error { return config.Ping(ctx, c.DB) })
	c.Health.RegisterBinaryCheck("ffmpeg", c.Config.Export.FFmpegBinary)
	c.Health.RegisterCapabilityCheck("narration", c.Narration.Available, "Set ELEVENLABS_API_KEY to enable narration")
	c.Health.RegisterBreakerCheck("image-rendering", c.Breaker)
}

// OnClose registers fn to run in Close, after the resources the container
// opened itself.
func (c *Container) OnClose(fn func() error) {
	c.closers = append(c.closers, fn)
}

// Close releases caches and upstream clients.
func (c *Container) Close() error {
	var first error
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
