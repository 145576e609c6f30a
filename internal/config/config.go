package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix             = "EDUCIRCLE"
	geminiAPIKeyEnv       = "GEMINI_API_KEY"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultAllowedOrigins = "*"
	defaultDatabaseDriver = DriverSQLite
	defaultDatabasePath   = "educircle.db"
	defaultLogLevel       = "info"
	defaultCookieName     = "app_session"
	defaultIssuer         = "educircle-auth"
	defaultTokenTTL       = 24 * time.Hour
	defaultMaxPromptChars = 15000
	defaultAITimeout      = 60 * time.Second
	defaultRetryBackoff   = 500 * time.Millisecond
	defaultMaxUploadBytes = 10 << 20
	defaultMinContent     = 50
	defaultRedisChannel   = "educircle-events"
	defaultHeartbeat      = 25 * time.Second
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress       string
	AllowedOrigins    []string
	DatabaseDriver    string
	DatabasePath      string
	DatabaseDSN       string
	LogLevel          string
	SigningSecret     string
	CookieName        string
	Issuer            string
	TokenTTL          time.Duration
	AIAPIKey          string
	AIBaseURL         string
	AIModels          []string
	MaxPromptChars    int
	MinContentChars   int
	AIRequestTimeout  time.Duration
	AIRetryBackoff    time.Duration
	MaxUploadBytes    int64
	RedisAddress      string
	RedisChannel      string
	HeartbeatInterval time.Duration
}

// AIReady reports whether a model credential is configured.
func (c AppConfig) AIReady() bool {
	return strings.TrimSpace(c.AIAPIKey) != ""
}

// LoadDotEnv reads KEY=value pairs from paths into the process environment.
// Variables that are already set win. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", defaultAllowedOrigins)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.signing_secret", "")
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("auth.token_ttl", defaultTokenTTL)
	configViper.SetDefault("ai.api_key", "")
	configViper.SetDefault("ai.base_url", "")
	configViper.SetDefault("ai.models", "")
	configViper.SetDefault("ai.max_prompt_chars", defaultMaxPromptChars)
	configViper.SetDefault("ai.min_content_chars", defaultMinContent)
	configViper.SetDefault("ai.request_timeout", defaultAITimeout)
	configViper.SetDefault("ai.retry_backoff", defaultRetryBackoff)
	configViper.SetDefault("upload.max_bytes", defaultMaxUploadBytes)
	configViper.SetDefault("realtime.redis_address", "")
	configViper.SetDefault("realtime.redis_channel", defaultRedisChannel)
	configViper.SetDefault("realtime.heartbeat_interval", defaultHeartbeat)
}

// Load parses and validates runtime configuration from viper. A missing AI
// key is not an error; callers check AIReady.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := Read(configViper)
	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Read parses configuration without validation, for offline tooling that
// never serves requests.
func Read(configViper *viper.Viper) AppConfig {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		AllowedOrigins:    splitList(configViper.GetString("http.allowed_origins")),
		DatabaseDriver:    strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:      configViper.GetString("database.path"),
		DatabaseDSN:       configViper.GetString("database.dsn"),
		LogLevel:          configViper.GetString("log.level"),
		SigningSecret:     configViper.GetString("auth.signing_secret"),
		CookieName:        configViper.GetString("auth.cookie_name"),
		Issuer:            configViper.GetString("auth.issuer"),
		TokenTTL:          configViper.GetDuration("auth.token_ttl"),
		AIAPIKey:          strings.TrimSpace(configViper.GetString("ai.api_key")),
		AIBaseURL:         configViper.GetString("ai.base_url"),
		AIModels:          splitList(configViper.GetString("ai.models")),
		MaxPromptChars:    configViper.GetInt("ai.max_prompt_chars"),
		MinContentChars:   configViper.GetInt("ai.min_content_chars"),
		AIRequestTimeout:  configViper.GetDuration("ai.request_timeout"),
		AIRetryBackoff:    configViper.GetDuration("ai.retry_backoff"),
		MaxUploadBytes:    configViper.GetInt64("upload.max_bytes"),
		RedisAddress:      strings.TrimSpace(configViper.GetString("realtime.redis_address")),
		RedisChannel:      configViper.GetString("realtime.redis_channel"),
		HeartbeatInterval: configViper.GetDuration("realtime.heartbeat_interval"),
	}
	if cfg.AIAPIKey == "" {
		cfg.AIAPIKey = strings.TrimSpace(os.Getenv(geminiAPIKeyEnv))
	}
	return cfg
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	switch c.DatabaseDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DatabaseDriver)
	}
	if c.MaxPromptChars <= 0 {
		return fmt.Errorf("ai.max_prompt_chars must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("upload.max_bytes must be positive")
	}
	if c.RedisAddress != "" && strings.TrimSpace(c.RedisChannel) == "" {
		return fmt.Errorf("realtime.redis_channel is required when realtime.redis_address is set")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
