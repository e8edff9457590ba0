package app

import (
	"os"
	"strings"
	"testing"
	"time"
)

var configEnvVars = []string{
	"BRIDGE_ADDR", "STREAM_HOST", "TORRENT_DATA_DIR", "TORRENT_LISTEN_PORT",
	"TORRENT_SEED", "TORRENT_METADATA_TIMEOUT", "TORRENT_SAMPLE_INTERVAL",
	"PROGRESS_INTERVAL", "MONGO_URI", "MONGO_DB", "MONGO_COLLECTION",
	"STREAM_RATE_LIMIT_RPS", "STREAM_RATE_LIMIT_BURST", "CORS_ALLOWED_ORIGINS",
	"LOG_LEVEL", "LOG_FORMAT", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_TRACE_SAMPLE_RATE",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)
	t.Chdir(t.TempDir())

	cfg := LoadConfig()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"BridgeAddr", cfg.BridgeAddr, "127.0.0.1:9741"},
		{"StreamHost", cfg.StreamHost, ""},
		{"TorrentDataDir", cfg.TorrentDataDir, "data"},
		{"ListenPort", cfg.ListenPort, 0},
		{"Seed", cfg.Seed, true},
		{"MetadataTimeout", cfg.MetadataTimeout, 10 * time.Minute},
		{"SampleInterval", cfg.SampleInterval, 200 * time.Millisecond},
		{"ProgressInterval", cfg.ProgressInterval, time.Second},
		{"MongoURI", cfg.MongoURI, ""},
		{"MongoDatabase", cfg.MongoDatabase, "torrentbridge"},
		{"MongoCollection", cfg.MongoCollection, "jobs"},
		{"StreamRateRPS", cfg.StreamRateRPS, float64(100)},
		{"StreamRateBurst", cfg.StreamRateBurst, 200},
		{"LogLevel", cfg.LogLevel, "info"},
		{"LogFormat", cfg.LogFormat, "text"},
		{"OTLPEndpoint", cfg.OTLPEndpoint, ""},
		{"TraceSampleRate", cfg.TraceSampleRate, 0.1},
	}
	for _, tc := range tests {
		if tc.got != tc.want {
			t.Errorf("%s = %v, want %v", tc.name, tc.got, tc.want)
		}
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Errorf("CORSAllowedOrigins = %v, want empty", cfg.CORSAllowedOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Chdir(t.TempDir())
	setEnvs(t, map[string]string{
		"BRIDGE_ADDR":              "0.0.0.0:7000",
		"STREAM_HOST":              "192.168.1.20",
		"TORRENT_LISTEN_PORT":      "42069",
		"TORRENT_SEED":             "false",
		"TORRENT_METADATA_TIMEOUT": "90s",
		"TORRENT_SAMPLE_INTERVAL":  "500",
		"MONGO_URI":                "mongodb://db:27017",
		"CORS_ALLOWED_ORIGINS":     "http://a.local, ,http://b.local",
		"LOG_LEVEL":                "DEBUG",
	})

	cfg := LoadConfig()

	if cfg.BridgeAddr != "0.0.0.0:7000" || cfg.StreamHost != "192.168.1.20" {
		t.Fatalf("addresses = %q %q", cfg.BridgeAddr, cfg.StreamHost)
	}
	if cfg.ListenPort != 42069 || cfg.Seed {
		t.Fatalf("torrent settings = %d %t", cfg.ListenPort, cfg.Seed)
	}
	if cfg.MetadataTimeout != 90*time.Second {
		t.Fatalf("MetadataTimeout = %v", cfg.MetadataTimeout)
	}
	if cfg.SampleInterval != 500*time.Millisecond {
		t.Fatalf("SampleInterval = %v", cfg.SampleInterval)
	}
	if cfg.MongoURI != "mongodb://db:27017" {
		t.Fatalf("MongoURI = %q", cfg.MongoURI)
	}
	if strings.Join(cfg.CORSAllowedOrigins, "|") != "http://a.local|http://b.local" {
		t.Fatalf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoadConfigInvalidValuesFallBack(t *testing.T) {
	clearConfigEnv(t)
	t.Chdir(t.TempDir())
	setEnvs(t, map[string]string{
		"TORRENT_LISTEN_PORT":      "-5",
		"TORRENT_SEED":             "maybe",
		"TORRENT_METADATA_TIMEOUT": "soon",
		"STREAM_RATE_LIMIT_RPS":    "fast",
	})

	cfg := LoadConfig()

	if cfg.ListenPort != 0 || !cfg.Seed || cfg.MetadataTimeout != 10*time.Minute || cfg.StreamRateRPS != 100 {
		t.Fatalf("fallbacks not applied: %+v", cfg)
	}
}

func TestLoadConfigReadsDotEnv(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(dir+"/.env", []byte("MONGO_DB=fromfile\nBRIDGE_ADDR=127.0.0.1:1\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Chdir(dir)
	t.Setenv("BRIDGE_ADDR", "127.0.0.1:2")

	cfg := LoadConfig()

	if cfg.MongoDatabase != "fromfile" {
		t.Fatalf("MongoDatabase = %q, want value from .env", cfg.MongoDatabase)
	}
	if cfg.BridgeAddr != "127.0.0.1:2" {
		t.Fatalf("BridgeAddr = %q, environment should win over .env", cfg.BridgeAddr)
	}
	os.Unsetenv("MONGO_DB")
}

func TestConfigValidate(t *testing.T) {
	valid := Config{
		BridgeAddr:       "127.0.0.1:9741",
		MetadataTimeout:  time.Minute,
		SampleInterval:   time.Second,
		ProgressInterval: time.Second,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"EmptyBridgeAddr", func(c *Config) { c.BridgeAddr = " " }},
		{"PortOutOfRange", func(c *Config) { c.ListenPort = 70000 }},
		{"ZeroMetadataTimeout", func(c *Config) { c.MetadataTimeout = 0 }},
		{"ZeroSampleInterval", func(c *Config) { c.SampleInterval = 0 }},
		{"NegativeProgressInterval", func(c *Config) { c.ProgressInterval = -time.Second }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
