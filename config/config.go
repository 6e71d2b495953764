package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	AlertLens AlertLensConfig `yaml:"alertlens"`
}

// AlertLensConfig is the project configuration.
type AlertLensConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Tracker    TrackerConfig    `yaml:"tracker"`
	Ingest     IngestConfig     `yaml:"ingest"`
	NameLookup NameLookupConfig `yaml:"name_lookup"`
	Categories CategoriesConfig `yaml:"categories"`
	Rules      RulesConfig      `yaml:"rules"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// StoreConfig controls the SQLite store.
type StoreConfig struct {
	Path     string `yaml:"path"`
	PoolSize int    `yaml:"pool_size"`
}

// TrackerConfig controls the external ticketing service client.
// Username and Token may also come from TRACKER_USER / TRACKER_TOKEN
// environment variables, which take precedence over the file.
type TrackerConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Username string        `yaml:"username"`
	Token    string        `yaml:"token"`
	Projects []string      `yaml:"projects"`
	PageSize int           `yaml:"page_size"`
	Timeout  time.Duration `yaml:"timeout"`
}

// IngestConfig controls ingestion cycles.
type IngestConfig struct {
	InitialDays int           `yaml:"initial_days"`
	Interval    time.Duration `yaml:"interval"`
}

// NameLookupConfig controls the external name resolution service.
type NameLookupConfig struct {
	URL     string           `yaml:"url"`
	Timeout time.Duration    `yaml:"timeout"`
	Redis   RedisCacheConfig `yaml:"redis"`
}

// RedisCacheConfig configures the optional shared name-cache tier.
// Left empty, resolution caches in process memory only.
type RedisCacheConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// CategoriesConfig controls the component category map.
type CategoriesConfig struct {
	Path           string        `yaml:"path"`
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// RulesConfig controls the alerting-rule file browser.
type RulesConfig struct {
	Enabled  bool                `yaml:"enabled"`
	RepoPath string              `yaml:"repo_path"`
	SubDirs  []string            `yaml:"subdirs"`
	ByTier   map[string][]string `yaml:"by_tier"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file, then applies
// environment overrides for tracker credentials.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if v := os.Getenv("TRACKER_USER"); v != "" {
		cfg.AlertLens.Tracker.Username = v
	}
	if v := os.Getenv("TRACKER_TOKEN"); v != "" {
		cfg.AlertLens.Tracker.Token = v
	}

	return &cfg, nil
}

// ApplyDefaults fills zero values with working defaults.
func ApplyDefaults(cfg *Config) {
	c := &cfg.AlertLens

	if c.Server.Addr == "" {
		c.Server.Addr = ":8818"
	}

	if c.Store.Path == "" {
		c.Store.Path = "alertlens.db"
	}
	if c.Store.PoolSize <= 0 {
		c.Store.PoolSize = 4
	}

	if len(c.Tracker.Projects) == 0 {
		c.Tracker.Projects = []string{"O11YDEV", "O11YSTAG", "O11Y"}
	}
	if c.Tracker.PageSize <= 0 {
		c.Tracker.PageSize = 100
	}
	if c.Tracker.Timeout <= 0 {
		c.Tracker.Timeout = 30 * time.Second
	}

	if c.Ingest.InitialDays <= 0 {
		c.Ingest.InitialDays = 30
	}
	if c.Ingest.Interval <= 0 {
		c.Ingest.Interval = 1 * time.Hour
	}

	if c.NameLookup.Timeout <= 0 {
		c.NameLookup.Timeout = 2 * time.Second
	}
	if c.NameLookup.Redis.KeyPrefix == "" {
		c.NameLookup.Redis.KeyPrefix = "alertlens:name:"
	}

	if c.Categories.Path == "" {
		c.Categories.Path = "config/component_categories.yaml"
	}
	if c.Categories.ReloadInterval <= 0 {
		c.Categories.ReloadInterval = 1 * time.Minute
	}

	if len(c.Rules.SubDirs) == 0 {
		c.Rules.SubDirs = []string{"rules/cluster-next-gen", "rules/dedicated", "rules/logging"}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
