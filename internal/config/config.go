package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	BlobBackendSupabase = "supabase"
	BlobBackendR2       = "r2"
)

type Config struct {
	// Supabase
	SupabaseURL            string
	SupabasePublishableKey string
	SupabaseJWTSecret      string
	SupabaseJWKSURL        string
	SupabaseStorageBucket  string

	// Database
	DatabaseURL string

	// Server
	Port           string
	Environment    string
	BaseURL        string
	AllowedOrigins []string
	StaticDir      string

	// Logging
	LogLevel  string
	LogFormat string

	// Studio
	AdminEmails          []string
	StudioContactEmail   string
	DeliveryBusinessDays int
	Currency             string

	// Blob storage
	BlobBackend       string
	R2Endpoint        string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2Bucket          string
	R2PublicDomain    string

	// Cache
	RedisURL string
	CacheTTL time.Duration

	// Email outbox
	RabbitMQURL string
	EmailQueue  string

	// Checkout
	StripeSecretKey     string
	StripeWebhookSecret string

	// Email
	ResendAPIKey string
	EmailFrom    string

	// Vision
	GeminiAPIKey string
	GeminiModel  string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	v := viper.New()
	ApplyDefaults(v)
	return v
}

// ApplyDefaults registers defaults and binds the environment.
func ApplyDefaults(v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("supabase_storage_bucket", "staging-assets")
	v.SetDefault("port", "8080")
	v.SetDefault("environment", EnvDevelopment)
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("allowed_origins", "*")
	v.SetDefault("static_dir", "./web/dist")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("delivery_business_days", 3)
	v.SetDefault("currency", "usd")
	v.SetDefault("blob_backend", BlobBackendSupabase)
	v.SetDefault("cache_ttl", "5m")
	v.SetDefault("email_queue", "studio.emails")
	v.SetDefault("email_from", "Staging Studio <studio@example.com>")
	v.SetDefault("gemini_model", "gemini-2.0-flash")
}

// Load reads an optional .env file and parses configuration from the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromViper(NewViper())
}

// FromViper parses configuration from an already prepared viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		SupabaseURL:            v.GetString("supabase_url"),
		SupabasePublishableKey: v.GetString("supabase_publishable_key"),
		SupabaseJWTSecret:      v.GetString("supabase_jwt_secret"),
		SupabaseJWKSURL:        v.GetString("supabase_jwks_url"),
		SupabaseStorageBucket:  v.GetString("supabase_storage_bucket"),

		DatabaseURL: v.GetString("database_url"),

		Port:           v.GetString("port"),
		Environment:    v.GetString("environment"),
		BaseURL:        strings.TrimSuffix(v.GetString("base_url"), "/"),
		AllowedOrigins: splitList(v.GetString("allowed_origins")),
		StaticDir:      v.GetString("static_dir"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),

		AdminEmails:          splitList(v.GetString("admin_emails")),
		StudioContactEmail:   v.GetString("studio_contact_email"),
		DeliveryBusinessDays: v.GetInt("delivery_business_days"),
		Currency:             strings.ToLower(v.GetString("currency")),

		BlobBackend:       strings.ToLower(v.GetString("blob_backend")),
		R2Endpoint:        v.GetString("r2_endpoint"),
		R2AccessKeyID:     v.GetString("r2_access_key_id"),
		R2SecretAccessKey: v.GetString("r2_secret_access_key"),
		R2Bucket:          v.GetString("r2_bucket"),
		R2PublicDomain:    v.GetString("r2_public_domain"),

		RedisURL: v.GetString("redis_url"),
		CacheTTL: v.GetDuration("cache_ttl"),

		RabbitMQURL: v.GetString("rabbitmq_url"),
		EmailQueue:  v.GetString("email_queue"),

		StripeSecretKey:     v.GetString("stripe_secret_key"),
		StripeWebhookSecret: v.GetString("stripe_webhook_secret"),

		ResendAPIKey: v.GetString("resend_api_key"),
		EmailFrom:    v.GetString("email_from"),

		GeminiAPIKey: v.GetString("gemini_api_key"),
		GeminiModel:  v.GetString("gemini_model"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabasePublishableKey == "" {
		return fmt.Errorf("SUPABASE_PUBLISHABLE_KEY is required")
	}
	if c.SupabaseJWTSecret == "" && c.SupabaseJWKSURL == "" {
		return fmt.Errorf("SUPABASE_JWT_SECRET or SUPABASE_JWKS_URL is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DeliveryBusinessDays <= 0 {
		return fmt.Errorf("DELIVERY_BUSINESS_DAYS must be positive")
	}
	switch c.BlobBackend {
	case BlobBackendSupabase:
	case BlobBackendR2:
		if c.R2Endpoint == "" || c.R2Bucket == "" {
			return fmt.Errorf("R2_ENDPOINT and R2_BUCKET are required when BLOB_BACKEND=r2")
		}
	default:
		return fmt.Errorf("unsupported BLOB_BACKEND %q", c.BlobBackend)
	}
	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
