package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Catalog backends.
const (
	BackendMongo  = "mongo"
	BackendSQLite = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Query      QueryConfig      `yaml:"query"`
	Statistics StatisticsConfig `yaml:"statistics"`
	NATS       NATSConfig       `yaml:"nats"`
	Worker     WorkerConfig     `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host           string        `yaml:"host" envconfig:"SERVER_HOST"`
	Port           int           `yaml:"port" envconfig:"SERVER_PORT"`
	ReadTimeout    time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT"`
	WriteTimeout   time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"SERVER_REQUEST_TIMEOUT"`
}

// CatalogConfig selects and configures the catalog store.
type CatalogConfig struct {
	Backend       string        `yaml:"backend" envconfig:"CATALOG_BACKEND"`
	MongoURI      string        `yaml:"mongo_uri" envconfig:"MONGO_URI"`
	MongoDatabase string        `yaml:"mongo_database" envconfig:"MONGO_DATABASE"`
	SQLitePath    string        `yaml:"sqlite_path" envconfig:"SQLITE_PATH"`
	Timeout       time.Duration `yaml:"timeout" envconfig:"CATALOG_TIMEOUT"`
}

// QueryConfig holds search configuration.
type QueryConfig struct {
	PageSize int `yaml:"page_size" envconfig:"QUERY_PAGE_SIZE"`
}

// StatisticsConfig holds aggregation configuration.
type StatisticsConfig struct {
	AccessKey string `yaml:"access_key" envconfig:"STATISTICS_ACCESS_KEY"`
	TopN      int    `yaml:"top_n" envconfig:"STATISTICS_TOP_N"`
}

// NATSConfig holds ingestion notification configuration. An empty URL
// disables the consumer.
type NATSConfig struct {
	URL     string `yaml:"url" envconfig:"NATS_URL"`
	Subject string `yaml:"subject" envconfig:"NATS_SUBJECT"`
	Queue   string `yaml:"queue" envconfig:"NATS_QUEUE"`
	Buffer  int    `yaml:"buffer" envconfig:"NATS_BUFFER"`
}

// WorkerConfig holds worker pool configuration.
type WorkerConfig struct {
	Count           int           `yaml:"count" envconfig:"WORKER_COUNT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"WORKER_SHUTDOWN_TIMEOUT"`
}

// Default returns the configuration used for every value not set by the
// file or the environment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           9848,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   time.Minute,
			RequestTimeout: 30 * time.Second,
		},
		Catalog: CatalogConfig{
			Backend:       BackendSQLite,
			MongoDatabase: "vidshelf",
			SQLitePath:    "/data/vidshelf.db",
			Timeout:       10 * time.Second,
		},
		Query: QueryConfig{
			PageSize: 12,
		},
		Statistics: StatisticsConfig{
			AccessKey: "videos",
			TopN:      5,
		},
		NATS: NATSConfig{
			Subject: "catalog.videos.recorded",
			Queue:   "vidshelf",
			Buffer:  64,
		},
		Worker: WorkerConfig{
			Count:           2,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

// Load reads configuration from file and environment variables.
// Environment variables override file values, which override defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	switch c.Catalog.Backend {
	case BackendMongo:
		if c.Catalog.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for the mongo backend")
		}
		if c.Catalog.MongoDatabase == "" {
			return fmt.Errorf("MONGO_DATABASE is required for the mongo backend")
		}
	case BackendSQLite:
		if c.Catalog.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("CATALOG_BACKEND must be %q or %q, got %q", BackendMongo, BackendSQLite, c.Catalog.Backend)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535")
	}
	if c.Query.PageSize <= 0 {
		return fmt.Errorf("QUERY_PAGE_SIZE must be positive")
	}
	if c.Statistics.AccessKey == "" {
		return fmt.Errorf("STATISTICS_ACCESS_KEY is required")
	}
	if c.Statistics.TopN <= 0 {
		return fmt.Errorf("STATISTICS_TOP_N must be positive")
	}
	if c.NATS.URL != "" && c.NATS.Subject == "" {
		return fmt.Errorf("NATS_SUBJECT is required when NATS_URL is set")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
