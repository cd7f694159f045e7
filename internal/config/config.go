package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"gopkg.in/yaml.v3"
)

const (
	defaultSourceBaseURL = "https://api.tfl.gov.uk/AccidentStats"
	defaultBatchSize     = 10000
	maxBatchSize         = 100000
)

// Config holds all service settings. Values come from an optional YAML file
// named by CONFIG_FILE, overridden by environment variables.
type Config struct {
	// Source API.
	SourceBaseURL     string
	StartYear         int
	EndYear           int
	SourceTimeout     time.Duration
	SourceRatePerSec  float64
	IngestConcurrency int
	SkipExisting      bool

	// Raw artifact storage.
	StorageRoot     string
	GCSBucket       string
	UploadChunkSize int
	UploadTimeout   time.Duration

	// Relational store.
	DB           DatabaseConfig
	Table        string
	BatchSize    int
	WeatherCSV   string
	WeatherTable string

	// Artifact notifications.
	KafkaBrokers []string
	KafkaTopic   string

	HTTPAddr          string
	AnalyticsCacheTTL time.Duration
	PushgatewayURL    string
	LogLevel          string
	LogFormat         string
	ShutdownTimeout   time.Duration
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// DSN renders the parameters as a PostgreSQL URL.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

// fileConfig mirrors the keys accepted in the YAML config file.
type fileConfig struct {
	SourceBaseURL string `yaml:"source_base_url"`
	StartYear     int    `yaml:"start_year"`
	EndYear       int    `yaml:"end_year"`
	GCSBucket     string `yaml:"gcs_bucket"`
	StorageRoot   string `yaml:"storage_root"`
}

// Load reads configuration from CONFIG_FILE (if set) and environment variables,
// applying defaults where unset.
func Load() (*Config, error) {
	file, err := readFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	p := &parser{}
	cfg := &Config{
		SourceBaseURL:     strings.TrimRight(sharedcfg.EnvOrDefault("SOURCE_BASE_URL", orDefault(file.SourceBaseURL, defaultSourceBaseURL)), "/"),
		StartYear:         p.int("START_YEAR", intOrDefault(file.StartYear, 2019)),
		EndYear:           p.int("END_YEAR", intOrDefault(file.EndYear, 2019)),
		SourceTimeout:     p.duration("SOURCE_TIMEOUT", 60*time.Second),
		SourceRatePerSec:  p.float("SOURCE_RATE_PER_SEC", 1),
		IngestConcurrency: p.int("INGEST_CONCURRENCY", 1),
		SkipExisting:      p.bool("INGEST_SKIP_EXISTING", false),

		StorageRoot:     sharedcfg.EnvOrDefault("STORAGE_ROOT", orDefault(file.StorageRoot, "./data")),
		GCSBucket:       strings.TrimSpace(sharedcfg.EnvOrDefault("GCS_BUCKET", file.GCSBucket)),
		UploadChunkSize: p.int("UPLOAD_CHUNK_SIZE", 10*1024*1024),
		UploadTimeout:   p.duration("UPLOAD_TIMEOUT", 300*time.Second),

		DB: DatabaseConfig{
			Host:     sharedcfg.EnvOrDefault("DB_HOST", "localhost"),
			Port:     p.int("DB_PORT", 5432),
			Name:     sharedcfg.EnvOrDefault("DB_NAME", "tfl_accidents"),
			User:     sharedcfg.EnvOrDefault("DB_USER", "postgres"),
			Password: os.Getenv("DB_PASSWORD"),
			SSLMode:  sharedcfg.EnvOrDefault("DB_SSLMODE", "disable"),
		},
		Table:        sharedcfg.EnvOrDefault("DB_TABLE", "public.accident_summary"),
		BatchSize:    p.int("BATCH_SIZE", defaultBatchSize),
		WeatherCSV:   os.Getenv("WEATHER_CSV_PATH"),
		WeatherTable: sharedcfg.EnvOrDefault("WEATHER_TABLE", "public.london_weather"),

		KafkaBrokers: sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "raw-accident-artifacts"),

		HTTPAddr:          sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		AnalyticsCacheTTL: p.duration("ANALYTICS_CACHE_TTL", 5*time.Minute),
		PushgatewayURL:    os.Getenv("PUSHGATEWAY_URL"),
		LogLevel:          sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:   shutdownTimeout,
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SourceBaseURL == "" {
		return errors.New("SOURCE_BASE_URL is required")
	}
	if c.StartYear > c.EndYear {
		return fmt.Errorf("START_YEAR %d is after END_YEAR %d", c.StartYear, c.EndYear)
	}
	if c.SourceTimeout <= 0 {
		return errors.New("SOURCE_TIMEOUT must be positive")
	}
	if c.SourceRatePerSec <= 0 {
		return errors.New("SOURCE_RATE_PER_SEC must be positive")
	}
	if c.IngestConcurrency < 1 {
		return errors.New("INGEST_CONCURRENCY must be at least 1")
	}
	if c.UploadChunkSize < 0 {
		return errors.New("UPLOAD_CHUNK_SIZE must not be negative")
	}
	if c.UploadTimeout <= 0 {
		return errors.New("UPLOAD_TIMEOUT must be positive")
	}
	if c.BatchSize < 1 || c.BatchSize > maxBatchSize {
		return fmt.Errorf("BATCH_SIZE must be between 1 and %d", maxBatchSize)
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		return fmt.Errorf("invalid DB_PORT: %d", c.DB.Port)
	}
	if c.AnalyticsCacheTTL < 0 {
		return errors.New("ANALYTICS_CACHE_TTL must not be negative")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL: %s", c.LogLevel)
	}
	return nil
}

// Years returns every year in [StartYear, EndYear].
func (c *Config) Years() []int {
	years := make([]int, 0, c.EndYear-c.StartYear+1)
	for y := c.StartYear; y <= c.EndYear; y++ {
		years = append(years, y)
	}
	return years
}

// RequireBucket reports an error when no upload bucket is configured.
func (c *Config) RequireBucket() error {
	if c.GCSBucket == "" {
		return errors.New("GCS_BUCKET is required")
	}
	return nil
}

// RequireDatabase reports an error when database settings are incomplete.
func (c *Config) RequireDatabase() error {
	if c.DB.Host == "" || c.DB.Name == "" || c.DB.User == "" {
		return errors.New("DB_HOST, DB_NAME and DB_USER are required")
	}
	if c.Table == "" {
		return errors.New("DB_TABLE is required")
	}
	return nil
}

func readFile(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc, nil
}

// parser records the first malformed variable so Load can report it by name.
type parser struct {
	err error
}

func (p *parser) fail(key, value string) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %q", key, value)
	}
}

func (p *parser) int(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		p.fail(key, s)
		return fallback
	}
	return v
}

func (p *parser) float(key string, fallback float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(key, s)
		return fallback
	}
	return v
}

func (p *parser) bool(key string, fallback bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(key, s)
		return fallback
	}
	return v
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		p.fail(key, s)
		return fallback
	}
	return v
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func intOrDefault(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
