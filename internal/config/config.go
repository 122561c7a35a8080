package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the process configuration, read from the environment.
type Config struct {
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCHealthAddr  string        `envconfig:"GRPC_HEALTH_ADDR" default:":8081"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseDSN string `envconfig:"DATABASE_DSN" default:"host=postgres user=postgres password=postgres dbname=wastereport port=5432 sslmode=disable"`
	RedisAddr   string `envconfig:"REDIS_ADDR" default:"redis:6379"`

	JWTSecret   string `envconfig:"JWT_SECRET" default:"dev-secret"`
	JWTAudience string `envconfig:"JWT_AUDIENCE"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS"`
	MaxUploadBytes     int64    `envconfig:"MAX_UPLOAD_BYTES" default:"33554432"`

	Classifier ClassifierConfig
	Storage    StorageConfig
	Policy     PolicyConfig

	ImpactCacheTTL time.Duration `envconfig:"IMPACT_CACHE_TTL" default:"5m"`
}

// ClassifierConfig selects and configures the remote vision model.
type ClassifierConfig struct {
	Provider      string        `envconfig:"CLASSIFIER_PROVIDER" default:"gemini"`
	Timeout       time.Duration `envconfig:"CLASSIFY_TIMEOUT" default:"60s"`
	GeminiAPIKey  string        `envconfig:"GEMINI_API_KEY"`
	GeminiModel   string        `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`
	OpenAIAPIKey  string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string        `envconfig:"OPENAI_BASE_URL"`
	OpenAIModel   string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
}

// StorageConfig selects where report image previews are kept.
type StorageConfig struct {
	Backend  string `envconfig:"IMAGE_STORE" default:"inline"`
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"reports"`
}

// PolicyConfig holds the optional upload and verification limits. Zero values
// disable the corresponding check.
type PolicyConfig struct {
	MaxImageBytes     int64    `envconfig:"POLICY_MAX_IMAGE_BYTES" default:"0"`
	AllowedMIMETypes  []string `envconfig:"POLICY_ALLOWED_MIME_TYPES"`
	MaxVerifyAttempts int      `envconfig:"POLICY_MAX_VERIFY_ATTEMPTS" default:"0"`
}

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	StorageInline = "inline"
	StorageS3     = "s3"
)

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv reads the configuration from the environment only.
func FromEnv() (*Config, error) {
	c := new(Config)
	if err := envconfig.Process("", c); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks cross-field requirements envconfig cannot express.
func (c *Config) Validate() error {
	c.Classifier.Provider = strings.ToLower(strings.TrimSpace(c.Classifier.Provider))
	switch c.Classifier.Provider {
	case ProviderGemini:
		if c.Classifier.GeminiAPIKey == "" {
			return errors.New("set GEMINI_API_KEY")
		}
	case ProviderOpenAI:
		if c.Classifier.OpenAIAPIKey == "" {
			return errors.New("set OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("unknown CLASSIFIER_PROVIDER %q", c.Classifier.Provider)
	}

	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	switch c.Storage.Backend {
	case StorageInline:
	case StorageS3:
		if c.Storage.S3Bucket == "" {
			return errors.New("set S3_BUCKET when IMAGE_STORE=s3")
		}
	default:
		return fmt.Errorf("unknown IMAGE_STORE %q", c.Storage.Backend)
	}

	if c.Classifier.Timeout <= 0 {
		c.Classifier.Timeout = 60 * time.Second
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 32 << 20
	}
	return nil
}
