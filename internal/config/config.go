// Package config loads voxchat settings from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends for audio blobs.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// HTTP server
	ServerPort    string
	PublicBaseURL string

	// Auth
	AuthSecret string
	AuthIssuer string

	// Audio storage
	StorageBackend string
	StorageDir     string
	S3Bucket       string
	S3Prefix       string
	S3Region       string
	S3Endpoint     string

	// Stub speech backends
	StubMinDelay time.Duration
	StubMaxDelay time.Duration

	// Client side
	ServerURL     string
	ClientToken   string
	SubmitTimeout time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first if present;
// variables already set in the environment win.
func Load() Config {
	_ = godotenv.Load()

	port := getEnv("VOXCHAT_SERVER_PORT", "8585")

	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "voxchat"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "voxchat"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		ServerPort:    port,
		PublicBaseURL: strings.TrimSuffix(getEnv("VOXCHAT_PUBLIC_URL", "http://localhost:"+port), "/"),

		AuthSecret: getEnv("VOXCHAT_AUTH_SECRET", "dev-secret-change-me"),
		AuthIssuer: getEnv("VOXCHAT_AUTH_ISSUER", "voxchat"),

		StorageBackend: strings.ToLower(getEnv("VOXCHAT_STORAGE", StorageLocal)),
		StorageDir:     getEnv("VOXCHAT_STORAGE_DIR", "/tmp/voxchat-audio"),
		S3Bucket:       getEnv("VOXCHAT_S3_BUCKET", ""),
		S3Prefix:       getEnv("VOXCHAT_S3_PREFIX", "voxchat"),
		S3Region:       getEnv("VOXCHAT_S3_REGION", "us-east-1"),
		S3Endpoint:     getEnv("VOXCHAT_S3_ENDPOINT", ""),

		StubMinDelay: getDuration("VOXCHAT_STUB_MIN_DELAY", 500*time.Millisecond),
		StubMaxDelay: getDuration("VOXCHAT_STUB_MAX_DELAY", 2*time.Second),

		ServerURL:     strings.TrimSuffix(getEnv("VOXCHAT_SERVER_URL", "http://localhost:"+port), "/"),
		ClientToken:   getEnv("VOXCHAT_TOKEN", ""),
		SubmitTimeout: getDuration("VOXCHAT_SUBMIT_TIMEOUT", 30*time.Second),

		LogFile:  getEnv("VOXCHAT_LOG_FILE", "/tmp/voxchat.log"),
		LogLevel: parseLogLevel(getEnv("VOXCHAT_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getDuration accepts Go duration strings ("750ms") or plain milliseconds ("750").
func getDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(val); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	slog.Warn("invalid duration, using default", "key", key, "value", val, "default", defaultVal)
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
