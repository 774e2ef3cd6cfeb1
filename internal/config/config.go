package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr        string `yaml:"addr"`
	DatabaseURL string `yaml:"database_url"`
	SyncToken   string `yaml:"sync_token"`
	ReposDir    string `yaml:"repos_dir"`
	CORSOrigin  string `yaml:"cors_origin"`
	// Search
	MeiliURL       string `yaml:"meili_url"`
	MeiliMasterKey string `yaml:"meili_master_key"`
	// Outbound transport over SMTP, disabled when SMTPHost is empty
	SMTPHost     string   `yaml:"smtp_host"`
	SMTPPort     string   `yaml:"smtp_port"`
	SMTPUsername string   `yaml:"smtp_username"`
	SMTPPassword string   `yaml:"smtp_password"`
	SMTPFrom     string   `yaml:"smtp_from"`
	SMTPFromName string   `yaml:"smtp_from_name"`
	SMTPTo       []string `yaml:"smtp_to"`
	// Outbound bodies are written here when SMTP is not configured
	OutboxDir string `yaml:"outbox_dir"`
	// Sync baselines and update sequences; empty disables the cache
	RedisURL string `yaml:"redis_url"`
	// Export archive
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3Region    string `yaml:"s3_region"`
	S3UseSSL    bool   `yaml:"s3_use_ssl"`
	// Engine
	Timezone       string        `yaml:"timezone"`
	FuzzyThreshold float64       `yaml:"fuzzy_threshold"`
	CompactGap     time.Duration `yaml:"compact_gap"`
	// Logging
	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`
}

func Load() Config {
	return Config{
		Addr:           getenv("API_ADDR", ":8787"),
		DatabaseURL:    getenv("DATABASE_URL", "sqlite://./data/eventlog.db"),
		SyncToken:      getenv("EVENTLOG_SYNC_TOKEN", "eventlog-sync-token"),
		ReposDir:       getenv("EVENTLOG_REPOS_DIR", "./data/repos"),
		CORSOrigin:     getenv("EVENTLOG_CORS_ORIGIN", "*"),
		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),
		SMTPHost:       getenv("SMTP_HOST", ""),
		SMTPPort:       getenv("SMTP_PORT", "587"),
		SMTPUsername:   getenv("SMTP_USERNAME", ""),
		SMTPPassword:   getenv("SMTP_PASSWORD", ""),
		SMTPFrom:       getenv("SMTP_FROM", ""),
		SMTPFromName:   getenv("SMTP_FROM_NAME", "EventLog"),
		SMTPTo:         getenvList("SMTP_TO"),
		OutboxDir:      getenv("EVENTLOG_OUTBOX_DIR", "./data/outbox"),
		RedisURL:       getenv("REDIS_URL", ""),
		S3Endpoint:     getenv("S3_ENDPOINT", ""),
		S3AccessKey:    getenv("S3_ACCESS_KEY", ""),
		S3SecretKey:    getenv("S3_SECRET_KEY", ""),
		S3Bucket:       getenv("S3_BUCKET", "eventlog-exports"),
		S3Region:       getenv("S3_REGION", "us-east-1"),
		S3UseSSL:       getenvBool("S3_USE_SSL", false),
		Timezone:       getenv("EVENTLOG_TIMEZONE", "Local"),
		FuzzyThreshold: getenvFloat("EVENTLOG_FUZZY_THRESHOLD", 50),
		CompactGap:     time.Duration(getenvInt("EVENTLOG_COMPACT_GAP_SECONDS", 300)) * time.Second,
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogPretty:      getenvBool("LOG_PRETTY", false),
	}
}

// LoadFile overlays the YAML file at path on the environment config. Keys
// absent from the file keep their environment value.
func LoadFile(path string) (Config, error) {
	cfg := Load()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Location resolves Timezone, falling back to the process zone.
func (c Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
