package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	StorageMemory = "memory"
	StorageMongo  = "mongo"
)

// SubscriptionConfig describes a single ICS feed imported into the store.
type SubscriptionConfig struct {
	// ID scopes imported event IDs; changing it re-imports the feed as new events.
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// StorageConfig selects and configures the event store.
type StorageConfig struct {
	// Driver is "memory" (default) or "mongo".
	Driver         string `yaml:"driver" json:"driver"`
	MongoURI       string `yaml:"mongo_uri" json:"mongo_uri"`
	MongoDatabase  string `yaml:"mongo_database" json:"mongo_database"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address of the API.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Storage StorageConfig `yaml:"storage" json:"storage"`

	// RefreshCron is a cron-style schedule (e.g. "*/15 * * * *") for
	// subscription syncs.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// CacheDir holds the HTTP cache of subscription feeds.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Subscriptions []SubscriptionConfig `yaml:"subscriptions" json:"subscriptions"`

	// DefaultMaxOccurrences caps occurrence listings that have neither a
	// count nor an end date from the rule or the request. 0 disables it,
	// leaving only the generator's safety cap.
	DefaultMaxOccurrences int `yaml:"default_max_occurrences" json:"default_max_occurrences"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:4000",
		LogLevel: "info",
		Storage: StorageConfig{
			Driver:         StorageMemory,
			MongoURI:       "mongodb://localhost:27017",
			MongoDatabase:  "event_scheduler_db",
			TimeoutSeconds: 5,
		},
		RefreshCron:   "*/15 * * * *",
		CacheDir:      "./var/ics-cache",
		Subscriptions: []SubscriptionConfig{},
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	switch c.LogLevel {
	case "debug", "info", "error":
	default:
		c.LogLevel = def.LogLevel
	}

	switch c.Storage.Driver {
	case StorageMemory, StorageMongo:
	default:
		// Unknown value; keep data in memory rather than fail to start.
		c.Storage.Driver = StorageMemory
	}
	if c.Storage.MongoURI == "" {
		c.Storage.MongoURI = def.Storage.MongoURI
	}
	if c.Storage.MongoDatabase == "" {
		c.Storage.MongoDatabase = def.Storage.MongoDatabase
	}
	if c.Storage.TimeoutSeconds <= 0 {
		c.Storage.TimeoutSeconds = def.Storage.TimeoutSeconds
	}

	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.Subscriptions == nil {
		c.Subscriptions = []SubscriptionConfig{}
	}
	for i := range c.Subscriptions {
		s := &c.Subscriptions[i]
		if s.ID == "" {
			if s.Name != "" {
				s.ID = s.Name
			} else {
				s.ID = s.URL
			}
		}
	}
	if c.DefaultMaxOccurrences < 0 {
		c.DefaultMaxOccurrences = 0
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (creating the parent directory) and returned.
//   - Otherwise the YAML is unmarshalled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms,
// creating the parent directory with 0700 if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".evsched-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
