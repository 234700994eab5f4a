// Package config loads deconflict settings from a YAML file with DECONFLICT_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-deconflict/pkg/logging"
	"github.com/dd0wney/cluso-deconflict/pkg/validation"
)

// Store backends
const (
	BackendNeo4j    = "neo4j"
	BackendEmbedded = "embedded"
)

// Config is the full application configuration
type Config struct {
	Backend  string         `yaml:"backend"`
	Neo4j    Neo4jConfig    `yaml:"neo4j"`
	Embedded EmbeddedConfig `yaml:"embedded"`
	Store    StoreConfig    `yaml:"store"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Notify   NotifyConfig   `yaml:"notify"`
	Audit    AuditConfig    `yaml:"audit"`
	Backup   BackupConfig   `yaml:"backup"`
}

type Neo4jConfig struct {
	URI            string `yaml:"uri"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	Database       string `yaml:"database"`
	FetchSize      int    `yaml:"fetch_size"`
	MaxConnections int    `yaml:"max_connections"`
}

type EmbeddedConfig struct {
	// SnapshotPath is empty for a graph that lives only in memory.
	SnapshotPath string `yaml:"snapshot_path"`
	PoolSize     int    `yaml:"pool_size"`
}

type StoreConfig struct {
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

type ServerConfig struct {
	Listen            string        `yaml:"listen"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	IntegrityInterval time.Duration `yaml:"integrity_interval"` // 0 disables the periodic audit
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type NotifyConfig struct {
	Log     bool   `yaml:"log"`
	NNGAddr string `yaml:"nng_addr"` // empty disables the NNG publisher
}

type AuditConfig struct {
	BufferSize  int    `yaml:"buffer_size"`
	JournalPath string `yaml:"journal_path"` // empty keeps events in memory only
}

type BackupConfig struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"` // S3-compatible endpoint override
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Backend: BackendNeo4j,
		Neo4j: Neo4jConfig{
			URI:            "127.0.0.1:7687",
			Username:       "neo4j",
			Database:       "neo4j",
			FetchSize:      500,
			MaxConnections: 10,
		},
		Embedded: EmbeddedConfig{PoolSize: 10},
		Store:    StoreConfig{QueryTimeout: 5 * time.Second},
		Server: ServerConfig{
			Listen:          "0.0.0.0:3001",
			ShutdownTimeout: 30 * time.Second,
		},
		Log:    LogConfig{Level: "INFO"},
		Notify: NotifyConfig{Log: true},
		Audit:  AuditConfig{BufferSize: 1000},
	}
}

// Load reads path (if non-empty) over the defaults, then applies environment
// overrides read through getenv, then validates. A nil getenv uses os.Getenv.
func Load(path string, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	// LOG_LEVEL precedes DECONFLICT_LOG_LEVEL so the prefixed form wins.
	strs := []struct {
		key string
		dst *string
	}{
		{"DECONFLICT_BACKEND", &c.Backend},
		{"DECONFLICT_NEO4J_URI", &c.Neo4j.URI},
		{"DECONFLICT_NEO4J_USER", &c.Neo4j.Username},
		{"DECONFLICT_NEO4J_PASSWORD", &c.Neo4j.Password},
		{"DECONFLICT_NEO4J_DATABASE", &c.Neo4j.Database},
		{"DECONFLICT_SNAPSHOT_PATH", &c.Embedded.SnapshotPath},
		{"DECONFLICT_LISTEN", &c.Server.Listen},
		{"DECONFLICT_NNG_ADDR", &c.Notify.NNGAddr},
		{"DECONFLICT_AUDIT_JOURNAL", &c.Audit.JournalPath},
		{"DECONFLICT_BACKUP_BUCKET", &c.Backup.Bucket},
		{"DECONFLICT_BACKUP_REGION", &c.Backup.Region},
		{"DECONFLICT_BACKUP_ENDPOINT", &c.Backup.Endpoint},
		{"LOG_LEVEL", &c.Log.Level},
		{"DECONFLICT_LOG_LEVEL", &c.Log.Level},
	}
	for _, e := range strs {
		if v := getenv(e.key); v != "" {
			*e.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"DECONFLICT_NEO4J_FETCH_SIZE", &c.Neo4j.FetchSize},
		{"DECONFLICT_NEO4J_MAX_CONNECTIONS", &c.Neo4j.MaxConnections},
		{"DECONFLICT_POOL_SIZE", &c.Embedded.PoolSize},
	}
	var errs []error
	for _, e := range ints {
		if v := getenv(e.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", e.key, err))
				continue
			}
			*e.dst = n
		}
	}
	if v := getenv("DECONFLICT_QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("DECONFLICT_QUERY_TIMEOUT: %w", err))
		} else {
			c.Store.QueryTimeout = d
		}
	}
	return errors.Join(errs...)
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate() error {
	cv := validation.NewConfigValidator("config").
		OneOf("backend", c.Backend, []string{BackendNeo4j, BackendEmbedded}).
		When(c.Backend == BackendNeo4j, func(cv *validation.ConfigValidator) {
			cv.Required("neo4j.uri", c.Neo4j.URI).
				Required("neo4j.username", c.Neo4j.Username).
				Positive("neo4j.fetch_size", c.Neo4j.FetchSize).
				RangeInt("neo4j.max_connections", c.Neo4j.MaxConnections, 1, 1000)
		}).
		When(c.Backend == BackendEmbedded, func(cv *validation.ConfigValidator) {
			cv.RangeInt("embedded.pool_size", c.Embedded.PoolSize, 1, 1000)
		}).
		MinDuration("store.query_timeout", c.Store.QueryTimeout, 10*time.Millisecond).
		Required("server.listen", c.Server.Listen).
		MinDuration("server.shutdown_timeout", c.Server.ShutdownTimeout, time.Second).
		Custom("log.level", func() error {
			_, err := logging.LevelFromString(c.Log.Level)
			return err
		}).
		Positive("audit.buffer_size", c.Audit.BufferSize)
	return cv.Validate()
}

// LogLevel returns the parsed log level
func (c *Config) LogLevel() logging.Level {
	return logging.ParseLevel(c.Log.Level)
}
