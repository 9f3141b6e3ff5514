package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Source kinds accepted by SOURCE.
const (
	SourceAPI = "api"
	SourceDB  = "db"
	SourceCSV = "csv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	Source         string
	TargetTimezone string
	HTTPAddr       string
	LogLevel       string
	LogFormat      string

	ShutdownTimeout time.Duration
	RunInterval     time.Duration

	// CSV source and sink.
	CSVPath       string
	OutputPath    string
	DashboardPath string

	// Postgres source and sink. The sink activates whenever DATABASE_URL
	// is set, independent of the selected source.
	DatabaseURL   string
	ExtractWindow time.Duration
	DatabaseTable string
	SinkTable     string

	// Open-Meteo API source.
	MeteoBaseURL   string
	MeteoLatitude  float64
	MeteoLongitude float64
	MeteoTimeout   time.Duration
	MeteoCacheTTL  time.Duration
	MeteoCacheSize int

	// Anomaly engine behavior.
	CleanFirst    bool
	DropAnomalies bool
	MergeFlags    bool

	// Kafka sink configuration (feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS).
	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is folded into the
// environment first; already-set variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := parsePositiveDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	runInterval, err := parsePositiveDuration("RUN_INTERVAL", "1h")
	if err != nil {
		return nil, err
	}

	extractWindow, err := parsePositiveDuration("EXTRACT_WINDOW", "24h")
	if err != nil {
		return nil, err
	}

	meteoTimeout, err := parsePositiveDuration("OPENMETEO_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	meteoCacheTTL, err := parsePositiveDuration("OPENMETEO_CACHE_TTL", "15m")
	if err != nil {
		return nil, err
	}

	lat, err := parseFloat("OPENMETEO_LATITUDE", "48.8566")
	if err != nil {
		return nil, err
	}
	lon, err := parseFloat("OPENMETEO_LONGITUDE", "2.3522")
	if err != nil {
		return nil, err
	}

	kafkaBrokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(kafkaBrokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		Source:         envOrDefault("SOURCE", SourceCSV),
		TargetTimezone: envOrDefault("TARGET_TIMEZONE", "Europe/Paris"),
		HTTPAddr:       envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:       envOrDefault("LOG_LEVEL", "info"),
		LogFormat:      envOrDefault("LOG_FORMAT", "json"),

		ShutdownTimeout: shutdownTimeout,
		RunInterval:     runInterval,

		CSVPath:       envOrDefault("CSV_PATH", "data/production.csv"),
		OutputPath:    envOrDefault("OUTPUT_PATH", "out/cleaned.csv"),
		DashboardPath: envOrDefault("DASHBOARD_PATH", "out/quality_report.html"),

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		ExtractWindow: extractWindow,
		DatabaseTable: envOrDefault("DATABASE_TABLE", "raw_measurements"),
		SinkTable:     envOrDefault("DATABASE_SINK_TABLE", "measurements"),

		MeteoBaseURL:   envOrDefault("OPENMETEO_BASE_URL", "https://api.open-meteo.com/v1/forecast"),
		MeteoLatitude:  lat,
		MeteoLongitude: lon,
		MeteoTimeout:   meteoTimeout,
		MeteoCacheTTL:  meteoCacheTTL,
		MeteoCacheSize: parseCacheSize(),

		CleanFirst:    os.Getenv("CLEAN_FIRST") == "true",
		DropAnomalies: os.Getenv("DROP_ANOMALIES") == "true",
		MergeFlags:    os.Getenv("ANOMALY_MERGE_FLAGS") == "true",

		KafkaEnabled:   kafkaEnabled,
		KafkaBrokers:   kafkaBrokers,
		KafkaSinkTopic: envOrDefault("KAFKA_SINK_TOPIC", "cleaned-production-data"),
	}

	switch cfg.Source {
	case SourceAPI, SourceDB, SourceCSV:
	default:
		return nil, fmt.Errorf("invalid SOURCE %q: must be one of api, db, csv", cfg.Source)
	}

	if cfg.Source == SourceDB && cfg.DatabaseURL == "" {
		return nil, errors.New("SOURCE is db but DATABASE_URL is not set")
	}
	if cfg.Source == SourceCSV && cfg.CSVPath == "" {
		return nil, errors.New("SOURCE is csv but CSV_PATH is empty")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	if _, err := time.LoadLocation(cfg.TargetTimezone); err != nil {
		return nil, fmt.Errorf("invalid TARGET_TIMEZONE %q: %w", cfg.TargetTimezone, err)
	}

	return cfg, nil
}

// Location resolves the configured target timezone. Load has already
// validated it, so resolution cannot fail afterwards.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TargetTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseFloat(key, fallback string) (float64, error) {
	f, err := strconv.ParseFloat(envOrDefault(key, fallback), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func parseCacheSize() int {
	if s := os.Getenv("OPENMETEO_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
