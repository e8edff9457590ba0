package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	BridgeAddr         string
	StreamHost         string
	TorrentDataDir     string
	ListenPort         int
	Seed               bool
	MetadataTimeout    time.Duration
	SampleInterval     time.Duration
	ProgressInterval   time.Duration
	MongoURI           string // empty = in-memory job journal
	MongoDatabase      string
	MongoCollection    string
	StreamRateRPS      float64
	StreamRateBurst    int
	CORSAllowedOrigins []string
	LogLevel           string
	LogFormat          string
	OTLPEndpoint       string
	TraceSampleRate    float64
}

// LoadConfig reads the environment, after loading a .env file from the
// working directory when one exists.
func LoadConfig() Config {
	_ = godotenv.Load(".env")

	return Config{
		BridgeAddr:         getEnv("BRIDGE_ADDR", "127.0.0.1:9741"),
		StreamHost:         strings.TrimSpace(os.Getenv("STREAM_HOST")),
		TorrentDataDir:     getEnv("TORRENT_DATA_DIR", "data"),
		ListenPort:         int(getEnvInt64("TORRENT_LISTEN_PORT", 0)),
		Seed:               getEnvBool("TORRENT_SEED", true),
		MetadataTimeout:    getEnvDuration("TORRENT_METADATA_TIMEOUT", 10*time.Minute),
		SampleInterval:     getEnvDuration("TORRENT_SAMPLE_INTERVAL", 200*time.Millisecond),
		ProgressInterval:   getEnvDuration("PROGRESS_INTERVAL", time.Second),
		MongoURI:           strings.TrimSpace(os.Getenv("MONGO_URI")),
		MongoDatabase:      getEnv("MONGO_DB", "torrentbridge"),
		MongoCollection:    getEnv("MONGO_COLLECTION", "jobs"),
		StreamRateRPS:      getEnvFloat("STREAM_RATE_LIMIT_RPS", 100),
		StreamRateBurst:    int(getEnvInt64("STREAM_RATE_LIMIT_BURST", 200)),
		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		OTLPEndpoint:       strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		TraceSampleRate:    getEnvFloat("OTEL_TRACE_SAMPLE_RATE", 0.1),
	}
}

// Validate rejects settings the sidecar cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.BridgeAddr) == "" {
		errs = append(errs, errors.New("BRIDGE_ADDR must not be empty"))
	}
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		errs = append(errs, fmt.Errorf("TORRENT_LISTEN_PORT %d out of range", c.ListenPort))
	}
	if c.MetadataTimeout <= 0 {
		errs = append(errs, errors.New("TORRENT_METADATA_TIMEOUT must be positive"))
	}
	if c.SampleInterval <= 0 {
		errs = append(errs, errors.New("TORRENT_SAMPLE_INTERVAL must be positive"))
	}
	if c.ProgressInterval <= 0 {
		errs = append(errs, errors.New("PROGRESS_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvDuration accepts Go durations ("90s") or bare milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
