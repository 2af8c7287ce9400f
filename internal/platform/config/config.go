package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// DevBackendURL is used when APP_ENV=development and BACKEND_BASE_URL is unset.
	DevBackendURL = "http://localhost:8000"
)

var ErrMissingBackendURL = errors.New("BACKEND_BASE_URL is required outside development")

// Config holds runtime configuration loaded from environment variables.
type Config struct {
	Port           string
	GinMode        string
	AppEnv         string
	LogLevel       string
	AllowedOrigins string

	Backend   BackendConfig
	Maps      MapsConfig
	Firebase  FirebaseConfig
	Redis     RedisConfig
	Analytics AnalyticsConfig

	ChatSessionTTL     time.Duration
	MapViewPresetsFile string
}

type BackendConfig struct {
	BaseURL   string
	APIPrefix string
	Timeout   time.Duration
	// PathOverrides maps endpoint names to explicit paths (BACKEND_PATH_<NAME>).
	PathOverrides map[string]string
}

type MapsConfig struct {
	APIKey   string
	Locality string
}

type FirebaseConfig struct {
	ProjectID   string
	CredsBase64 string
	CredsFile   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AnalyticsConfig is passed through to clients; this service does not emit analytics.
type AnalyticsConfig struct {
	Key  string
	Host string
}

// Load reads environment variables into a Config with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "release"),
		AppEnv:         getEnv("APP_ENV", EnvProduction),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")),
		Maps: MapsConfig{
			APIKey:   strings.TrimSpace(os.Getenv("GOOGLE_MAPS_API_KEY")),
			Locality: getEnv("MAPS_LOCALITY", "seattle, wa"),
		},
		Firebase: FirebaseConfig{
			ProjectID:   strings.TrimSpace(os.Getenv("FIREBASE_PROJECT_ID")),
			CredsBase64: strings.TrimSpace(os.Getenv("FIREBASE_CREDS_BASE64")),
			CredsFile:   strings.TrimSpace(os.Getenv("FIREBASE_CREDS_FILE")),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Analytics: AnalyticsConfig{
			Key:  strings.TrimSpace(os.Getenv("POSTHOG_KEY")),
			Host: getEnv("POSTHOG_HOST", "https://us.i.posthog.com"),
		},
		MapViewPresetsFile: strings.TrimSpace(os.Getenv("MAP_VIEW_PRESETS_FILE")),
	}

	var err error
	if cfg.Backend, err = LoadBackend(); err != nil {
		return Config{}, err
	}
	if cfg.ChatSessionTTL, err = parseDurationEnv("CHAT_SESSION_TTL", 2*time.Hour); err != nil {
		return Config{}, fmt.Errorf("parse CHAT_SESSION_TTL: %w", err)
	}
	if cfg.Redis.DB, err = parseIntEnv("REDIS_DB", 0); err != nil {
		return Config{}, fmt.Errorf("parse REDIS_DB: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadBackend reads only the parking backend settings, for tools that never touch Firestore.
func LoadBackend() (BackendConfig, error) {
	b := BackendConfig{
		BaseURL:       strings.TrimRight(strings.TrimSpace(os.Getenv("BACKEND_BASE_URL")), "/"),
		APIPrefix:     getEnv("BACKEND_API_PREFIX", "/api"),
		PathOverrides: pathOverrides(),
	}
	var err error
	if b.Timeout, err = parseDurationEnv("BACKEND_TIMEOUT", 30*time.Second); err != nil {
		return BackendConfig{}, fmt.Errorf("parse BACKEND_TIMEOUT: %w", err)
	}
	if b.BaseURL, err = ResolveBackendURL(getEnv("APP_ENV", EnvProduction), b.BaseURL); err != nil {
		return BackendConfig{}, err
	}
	return b, nil
}

// ResolveBackendURL picks the backend base URL. An explicit URL always wins; without one,
// only the development environment falls back to the local backend.
func ResolveBackendURL(appEnv, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if appEnv == EnvDevelopment {
		return DevBackendURL, nil
	}
	return "", ErrMissingBackendURL
}

// Validate ensures required fields are present.
func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.AppEnv != EnvDevelopment && c.AppEnv != EnvProduction {
		return fmt.Errorf("APP_ENV must be %q or %q", EnvDevelopment, EnvProduction)
	}
	if c.Backend.BaseURL == "" {
		return ErrMissingBackendURL
	}
	if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		return fmt.Errorf("BACKEND_BASE_URL must be an http(s) URL, got %q", c.Backend.BaseURL)
	}
	if c.Firebase.ProjectID == "" {
		return errors.New("FIREBASE_PROJECT_ID is required")
	}
	if c.Firebase.CredsBase64 == "" && c.Firebase.CredsFile == "" && os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		return errors.New("provide FIREBASE_CREDS_BASE64 or FIREBASE_CREDS_FILE for Firestore auth")
	}
	if c.ChatSessionTTL <= 0 {
		return errors.New("CHAT_SESSION_TTL must be positive")
	}
	return nil
}

// FirebaseCredentialsJSON returns the service account JSON bytes and the source used.
func (c Config) FirebaseCredentialsJSON() ([]byte, string, error) {
	if c.Firebase.CredsBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(c.Firebase.CredsBase64)
		if err != nil {
			return nil, "base64", fmt.Errorf("decode FIREBASE_CREDS_BASE64: %w", err)
		}
		return decoded, "base64", nil
	}
	if c.Firebase.CredsFile != "" {
		data, err := os.ReadFile(c.Firebase.CredsFile)
		if err != nil {
			return nil, "file", fmt.Errorf("read FIREBASE_CREDS_FILE: %w", err)
		}
		return data, "file", nil
	}
	return nil, "", errors.New("no firebase credentials found")
}

// pathOverrides collects BACKEND_PATH_* variables, keyed by lowercased suffix.
func pathOverrides() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "BACKEND_PATH_") {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, "BACKEND_PATH_"))
		out[name] = strings.TrimSpace(val)
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func parseDurationEnv(key string, defaultVal time.Duration) (time.Duration, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(val)
}

func parseIntEnv(key string, defaultVal int) (int, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(val)
}
