package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	NodeEnv     string `envconfig:"NODE_ENV" default:"development"`
	Port        string `envconfig:"PORT" default:"3001"`
	JWTSecret   string `envconfig:"JWT_SECRET"`
	FrontendURL string `envconfig:"FRONTEND_URL" default:"http://localhost:3000"`

	Database DatabaseConfig `ignored:"true"`
	Storage  StorageConfig  `ignored:"true"`
	Gemini   GeminiConfig   `ignored:"true"`
	Stripe   StripeConfig   `ignored:"true"`
	Pipeline PipelineConfig `ignored:"true"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `envconfig:"PG_HOST" default:"localhost"`
	Port     string `envconfig:"PG_PORT" default:"5432"`
	Username string `envconfig:"PG_USERNAME" default:"postgres"`
	Password string `envconfig:"PG_PASSWORD"`
	Database string `envconfig:"PG_DATABASE" default:"snaglog"`
	Alter    bool   `envconfig:"DB_ALTER" default:"false"`
	Debug    bool   `ignored:"true"`

	// Embedded PostgreSQL is used for localhost without a password
	EmbeddedDataPath string `envconfig:"PG_EMBEDDED_DATA" default:"./db_data"`
	EmbeddedPort     uint32 `envconfig:"PG_EMBEDDED_PORT" default:"5433"`
}

// StorageConfig holds the S3-compatible blob store configuration
type StorageConfig struct {
	Endpoint  string `envconfig:"S3_ENDPOINT" default:"localhost:9000"`
	AccessKey string `envconfig:"S3_ACCESS_KEY" default:"minioadmin"`
	SecretKey string `envconfig:"S3_SECRET_KEY" default:"minioadmin"`
	Bucket    string `envconfig:"S3_BUCKET" default:"snaglog"`
	UseSSL    bool   `envconfig:"S3_USE_SSL" default:"false"`
	PublicURL string `envconfig:"S3_PUBLIC_URL"`
}

// GeminiConfig holds the vision model configuration
type GeminiConfig struct {
	APIKey string `envconfig:"GEMINI_API_KEY"`
	Model  string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
}

// StripeConfig holds payment gateway configuration
type StripeConfig struct {
	SecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	PriceID       string `envconfig:"STRIPE_PRICE_ID"`
	WebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
}

// PipelineConfig holds the upload and analysis tuning knobs
type PipelineConfig struct {
	AnalysisConcurrency int           `envconfig:"ANALYSIS_CONCURRENCY" default:"5"`
	UploadConcurrency   int           `envconfig:"UPLOAD_CONCURRENCY" default:"4"`
	AnalysisTimeout     time.Duration `envconfig:"ANALYSIS_TIMEOUT" default:"60s"`
	AnalysisStaleAfter  time.Duration `envconfig:"ANALYSIS_STALE_AFTER" default:"15m"`
	RenderStaleAfter    time.Duration `envconfig:"RENDER_STALE_AFTER" default:"10m"`
	JPEGQuality         int           `envconfig:"JPEG_QUALITY" default:"85"`
	HEICQuality         int           `envconfig:"HEIC_QUALITY" default:"90"`
	MaxImageDimension   int           `envconfig:"MAX_IMAGE_DIMENSION" default:"2048"`
	MaxPhotoBytes       int64         `envconfig:"MAX_PHOTO_BYTES" default:"10485760"`
	MaxPhotos           int           `envconfig:"MAX_PHOTOS" default:"100"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	var cfg Config
	sections := []struct {
		name   string
		target interface{}
	}{
		{"general", &cfg},
		{"database", &cfg.Database},
		{"storage", &cfg.Storage},
		{"gemini", &cfg.Gemini},
		{"stripe", &cfg.Stripe},
		{"pipeline", &cfg.Pipeline},
	}
	for _, s := range sections {
		if err := envconfig.Process("", s.target); err != nil {
			return nil, fmt.Errorf("failed to load %s config: %w", s.name, err)
		}
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if err := cfg.Pipeline.validate(); err != nil {
		return nil, err
	}
	cfg.Database.Debug = !cfg.IsProduction()

	return &cfg, nil
}

// IsProduction reports whether NODE_ENV selects production behaviour
func (c *Config) IsProduction() bool {
	return c.NodeEnv == "production"
}

func (p PipelineConfig) validate() error {
	if p.AnalysisConcurrency < 1 {
		return fmt.Errorf("ANALYSIS_CONCURRENCY must be at least 1")
	}
	if p.UploadConcurrency < 1 {
		return fmt.Errorf("UPLOAD_CONCURRENCY must be at least 1")
	}
	if p.JPEGQuality < 1 || p.JPEGQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be between 1 and 100")
	}
	if p.HEICQuality < 1 || p.HEICQuality > 100 {
		return fmt.Errorf("HEIC_QUALITY must be between 1 and 100")
	}
	if p.MaxPhotos < 1 {
		return fmt.Errorf("MAX_PHOTOS must be at least 1")
	}
	// Every stored result refreshes a running analysis, so the longest quiet
	// gap of a live run is one analysis attempt
	if p.AnalysisStaleAfter > 0 && p.AnalysisTimeout > 0 && p.AnalysisStaleAfter < 2*p.AnalysisTimeout {
		return fmt.Errorf("ANALYSIS_STALE_AFTER must be at least twice ANALYSIS_TIMEOUT")
	}
	if p.RenderStaleAfter < 0 {
		return fmt.Errorf("RENDER_STALE_AFTER must not be negative")
	}
	return nil
}
