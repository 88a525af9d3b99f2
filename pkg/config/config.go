package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port    string
		Env     string
		Timeout time.Duration
		BaseURL string
	}

	// Database configuration
	Database struct {
		Driver     string // "sqlite" or "postgres"
		SQLitePath string
		Host       string
		Port       string
		User       string
		Password   string
		Name       string
		SSLMode    string
		MaxConns   int
		Timeout    time.Duration
	}

	// Session store configuration
	Store struct {
		Backend      string // "gorm" or "supabase"
		CacheBackend string // "memory", "redis" or "none"
		CacheTTL     time.Duration
		CacheMaxSize int
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	Supabase struct {
		URL   string
		Key   string
		Table string
	}

	// Text completion collaborator
	TextGen struct {
		Provider    string // "ollama" or "gemini"
		OllamaURL   string
		OllamaModel string
		GeminiModel string
		Timeout     time.Duration
	}

	// Image rendering collaborator
	Image struct {
		Endpoint       string
		Model          string
		GuidanceScale  float64
		InferenceSteps int
		Timeout        time.Duration
	}

	// Narration synthesis collaborator
	Narration struct {
		Endpoint string
		VoiceID  string
		Timeout  time.Duration
	}

	// Export pipeline
	Export struct {
		OutputDir          string
		FontCandidates     []string
		FFmpegBinary       string
		DefaultFPS         int
		DefaultPerSceneSec float64
	}

	// Story generation bounds and character continuity
	Story struct {
		MinScenes       int
		MaxScenes       int
		DefaultScenes   int
		ContinuityHints bool
		SkipStopwords   bool
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
		MaxBodySize    int64
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	Observability struct {
		TracingEnabled bool
		ServiceName    string
		Version        string
		SampleRatio    float64
	}

	Vault struct {
		Enabled     bool
		Address     string
		Token       string
		Namespace   string
		SecretsPath string
		Mount       string
		CacheTTL    time.Duration
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		godotenv.Load()

		instance = Load()
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Load builds a fresh Config from the current environment without touching
// the singleton.
func Load() *Config {
	cfg := &Config{}

	// Server config
	cfg.Server.Port = getEnvString("PORT", "8000")
	cfg.Server.Env = getEnvString("APP_ENV", "development")
	cfg.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)
	cfg.Server.BaseURL = getEnvString("BASE_URL", "http://localhost:"+cfg.Server.Port)

	// Database config
	cfg.Database.Driver = getEnvString("DB_DRIVER", "sqlite")
	cfg.Database.SQLitePath = getEnvString("DB_SQLITE_PATH", "data/storygen.db")
	cfg.Database.Host = getEnvString("DB_HOST", "localhost")
	cfg.Database.Port = getEnvString("DB_PORT", "5432")
	cfg.Database.User = getEnvString("DB_USER", "postgres")
	cfg.Database.Password = getEnvString("DB_PASSWORD", "postgres")
	cfg.Database.Name = getEnvString("DB_NAME", "storygen")
	cfg.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)

	// Session store
	cfg.Store.Backend = getEnvString("STORE_BACKEND", "gorm")
	cfg.Store.CacheBackend = getEnvString("STORE_CACHE", "memory")
	cfg.Store.CacheTTL = getEnvDuration("STORE_CACHE_TTL", 5*time.Minute)
	cfg.Store.CacheMaxSize = getEnvInt("STORE_CACHE_MAX_SIZE", 1000)

	cfg.Redis.Addr = getEnvString("REDIS_URL", "localhost:6379")
	cfg.Redis.Password = getEnvString("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Supabase.URL = getEnvString("SUPABASE_URL", "")
	cfg.Supabase.Key = getEnvString("SUPABASE_KEY", "")
	cfg.Supabase.Table = getEnvString("SUPABASE_TABLE", "story_sessions")

	// Text completion
	cfg.TextGen.Provider = getEnvString("TEXTGEN_PROVIDER", "ollama")
	cfg.TextGen.OllamaURL = getEnvString("OLLAMA_URL", "http://localhost:11434/api/generate")
	cfg.TextGen.OllamaModel = getEnvString("OLLAMA_MODEL", "mistral")
	cfg.TextGen.GeminiModel = getEnvString("GEMINI_MODEL", "gemini-2.5-pro")
	cfg.TextGen.Timeout = getEnvDuration("TEXTGEN_TIMEOUT", 120*time.Second)

	// Image rendering
	cfg.Image.Endpoint = getEnvString("IMAGE_ENDPOINT", "https://router.huggingface.co/nscale/models")
	cfg.Image.Model = getEnvString("IMAGE_MODEL", "stabilityai/stable-diffusion-xl-base-1.0")
	cfg.Image.GuidanceScale = getEnvFloat("IMAGE_GUIDANCE_SCALE", 7)
	cfg.Image.InferenceSteps = getEnvInt("IMAGE_INFERENCE_STEPS", 30)
	cfg.Image.Timeout = getEnvDuration("IMAGE_TIMEOUT", 180*time.Second)

	// Narration
	cfg.Narration.Endpoint = getEnvString("NARRATION_ENDPOINT", "https://api.elevenlabs.io/v1/text-to-speech")
	cfg.Narration.VoiceID = getEnvString("NARRATION_VOICE_ID", "21m00Tcm4TlvDq8ikWAM")
	cfg.Narration.Timeout = getEnvDuration("NARRATION_TIMEOUT", 120*time.Second)

	// Export
	cfg.Export.OutputDir = getEnvString("OUTPUT_DIR", "outputs")
	cfg.Export.FontCandidates = getEnvStringSlice("PDF_FONT_CANDIDATES", []string{
		"outputs/DejaVuSans.ttf",
		"assets/fonts/DejaVuSans.ttf",
		"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	})
	cfg.Export.FFmpegBinary = getEnvString("FFMPEG_BINARY", "ffmpeg")
	cfg.Export.DefaultFPS = getEnvInt("VIDEO_FPS", 24)
	cfg.Export.DefaultPerSceneSec = getEnvFloat("VIDEO_PER_SCENE_SEC", 5.0)

	// Story
	cfg.Story.MinScenes = getEnvInt("STORY_MIN_SCENES", 2)
	cfg.Story.MaxScenes = getEnvInt("STORY_MAX_SCENES", 8)
	cfg.Story.DefaultScenes = getEnvInt("STORY_DEFAULT_SCENES", 4)
	cfg.Story.ContinuityHints = getEnvBool("CONTINUITY_HINTS", true)
	cfg.Story.SkipStopwords = getEnvBool("CHARACTER_SKIP_STOPWORDS", false)

	// Security config
	cfg.Security.RateLimit = getEnvFloat("RATE_LIMIT", 5)
	cfg.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
	cfg.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})
	cfg.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 1<<20) // 1MB

	// Logging config
	cfg.Logging.Level = getEnvString("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvString("LOG_FORMAT", "json")

	cfg.Observability.TracingEnabled = getEnvBool("TRACING_ENABLED", false)
	cfg.Observability.ServiceName = getEnvString("SERVICE_NAME", "storygen")
	cfg.Observability.Version = getEnvString("APP_VERSION", "dev")
	cfg.Observability.SampleRatio = getEnvFloat("TRACE_SAMPLE_RATIO", 1)

	cfg.Vault.Enabled = getEnvBool("VAULT_ENABLED", false)
	cfg.Vault.Address = getEnvString("VAULT_ADDR", "")
	cfg.Vault.Token = getEnvString("VAULT_TOKEN", "")
	cfg.Vault.Namespace = getEnvString("VAULT_NAMESPACE", "")
	cfg.Vault.SecretsPath = getEnvString("VAULT_SECRETS_PATH", "storygen")
	cfg.Vault.Mount = getEnvString("VAULT_MOUNT", "secret")
	cfg.Vault.CacheTTL = getEnvDuration("VAULT_CACHE_TTL", 5*time.Minute)

	return cfg
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
