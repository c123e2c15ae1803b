// Package config loads lockerindex configuration from defaults, the user
// config file, the project file and LOCKERINDEX_* environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	ixerrors "github.com/Aman-CERP/lockerindex/internal/errors"
)

// Defaults.
const (
	DefaultBaseURL   = "http://localhost:8042"
	DefaultTimeout   = "5m"
	DefaultEngine    = "bleve"
	DefaultBatchSize = 100
	DefaultCacheSize = 1024
	DefaultTransport = "stdio"
	DefaultLogLevel  = "info"
)

// ProjectFileName is the per-directory config file.
const ProjectFileName = ".lockerindex.yaml"

// Config is the complete lockerindex configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Locker    LockerConfig    `yaml:"locker" json:"locker"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Datastore DatastoreConfig `yaml:"datastore" json:"datastore"`
	Server    ServerConfig    `yaml:"server" json:"server"`
}

// LockerConfig configures where records are gathered from.
type LockerConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Timeout bounds each service fetch, as a Go duration ("5m").
	Timeout  string          `yaml:"timeout" json:"timeout"`
	Services []ServiceConfig `yaml:"services" json:"services"`
}

// ServiceConfig maps a locker service to an index type and id scheme.
type ServiceConfig struct {
	Name   string `yaml:"name" json:"name"`
	Type   string `yaml:"type" json:"type"`
	Scheme string `yaml:"scheme" json:"scheme"`

	// Journal routes records into a people collection (friends, followers)
	// or a status timeline (home_timeline, user_timeline, mentions).
	// Empty journals raw records under the service name.
	Journal string `yaml:"journal,omitempty" json:"journal,omitempty"`
}

// JournalKinds are the accepted ServiceConfig.Journal values.
var JournalKinds = []string{"friends", "followers", "home_timeline", "user_timeline", "mentions"}

// IndexConfig configures the search index.
type IndexConfig struct {
	Path      string `yaml:"path" json:"path"`
	Engine    string `yaml:"engine" json:"engine"`
	BatchSize int    `yaml:"batch_size" json:"batch_size"`
}

// DatastoreConfig configures the record journal. An empty Path disables it.
type DatastoreConfig struct {
	Path      string `yaml:"path" json:"path"`
	CacheSize int    `yaml:"cache_size" json:"cache_size"`
}

// ServerConfig configures serve mode.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	// MetricsAddr is the Prometheus listen address; empty disables it.
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	LogLevel    string `yaml:"log_level" json:"log_level"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Locker: LockerConfig{
			BaseURL: DefaultBaseURL,
			Timeout: DefaultTimeout,
			Services: []ServiceConfig{
				{Name: "contacts", Type: "contactcontacts", Scheme: "contact"},
				{Name: "photos", Type: "photophotos", Scheme: "photo"},
				{Name: "places", Type: "placeplaces", Scheme: "place"},
			},
		},
		Index: IndexConfig{
			Path:      filepath.Join(dataDir(), "index"),
			Engine:    DefaultEngine,
			BatchSize: DefaultBatchSize,
		},
		Datastore: DatastoreConfig{
			Path:      filepath.Join(dataDir(), "datastore.db"),
			CacheSize: DefaultCacheSize,
		},
		Server: ServerConfig{
			Transport: DefaultTransport,
			LogLevel:  DefaultLogLevel,
		},
	}
}

// dataDir is ~/.lockerindex.
func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".lockerindex")
	}
	return filepath.Join(home, ".lockerindex")
}

// GetUserConfigPath returns the user configuration file:
//   - $XDG_CONFIG_HOME/lockerindex/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/lockerindex/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "lockerindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "lockerindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "lockerindex", "config.yaml")
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	_, err := os.Stat(GetUserConfigPath())
	return err == nil
}

// Load builds the configuration for dir, in increasing precedence:
//  1. Built-in defaults
//  2. User config ($XDG_CONFIG_HOME/lockerindex/config.yaml)
//  3. Project config (.lockerindex.yaml in dir)
//  4. Environment variables (LOCKERINDEX_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if path := filepath.Join(dir, ProjectFileName); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	cfg.Index.Path = ExpandHome(cfg.Index.Path)
	cfg.Datastore.Path = ExpandHome(cfg.Datastore.Path)

	if err := cfg.Validate(); err != nil {
		return nil, ixerrors.New(ixerrors.ErrCodeConfigInvalid, "invalid configuration: "+err.Error(), err)
	}
	return cfg, nil
}

// loadYAML merges the non-zero values of a YAML file into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith copies non-zero values from other into c. A services list
// replaces the current one wholesale.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Locker.BaseURL != "" {
		c.Locker.BaseURL = other.Locker.BaseURL
	}
	if other.Locker.Timeout != "" {
		c.Locker.Timeout = other.Locker.Timeout
	}
	if len(other.Locker.Services) > 0 {
		c.Locker.Services = other.Locker.Services
	}

	if other.Index.Path != "" {
		c.Index.Path = other.Index.Path
	}
	if other.Index.Engine != "" {
		c.Index.Engine = other.Index.Engine
	}
	if other.Index.BatchSize != 0 {
		c.Index.BatchSize = other.Index.BatchSize
	}

	if other.Datastore.Path != "" {
		c.Datastore.Path = other.Datastore.Path
	}
	if other.Datastore.CacheSize != 0 {
		c.Datastore.CacheSize = other.Datastore.CacheSize
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.MetricsAddr != "" {
		c.Server.MetricsAddr = other.Server.MetricsAddr
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies LOCKERINDEX_* variables. LOCKERINDEX_DATASTORE_PATH
// may be set to the empty string to disable journaling.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("LOCKERINDEX_LOCKER_URL"); v != "" {
		c.Locker.BaseURL = v
	}
	if v := os.Getenv("LOCKERINDEX_LOCKER_TIMEOUT"); v != "" {
		c.Locker.Timeout = v
	}
	if v := os.Getenv("LOCKERINDEX_INDEX_PATH"); v != "" {
		c.Index.Path = v
	}
	if v := os.Getenv("LOCKERINDEX_ENGINE"); v != "" {
		c.Index.Engine = v
	}
	if v := os.Getenv("LOCKERINDEX_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LOCKERINDEX_BATCH_SIZE: %w", err)
		}
		c.Index.BatchSize = n
	}
	if v, ok := os.LookupEnv("LOCKERINDEX_DATASTORE_PATH"); ok {
		c.Datastore.Path = v
	}
	if v := os.Getenv("LOCKERINDEX_METRICS_ADDR"); v != "" {
		c.Server.MetricsAddr = v
	}
	if v := os.Getenv("LOCKERINDEX_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	return nil
}

// Validate checks the configuration. The engine name is not validated:
// unknown engines fall back to the null engine at selection time.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Locker.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("locker.base_url must be an absolute URL, got %q", c.Locker.BaseURL)
	}
	if _, err := c.Locker.TimeoutDuration(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Locker.Services))
	for i, svc := range c.Locker.Services {
		if svc.Name == "" || svc.Type == "" || svc.Scheme == "" {
			return fmt.Errorf("locker.services[%d] needs name, type and scheme", i)
		}
		if seen[svc.Name] {
			return fmt.Errorf("locker.services: duplicate service %q", svc.Name)
		}
		if svc.Journal != "" && !slices.Contains(JournalKinds, svc.Journal) {
			return fmt.Errorf("locker.services[%d].journal must be one of %s, got %q",
				i, strings.Join(JournalKinds, ", "), svc.Journal)
		}
		seen[svc.Name] = true
	}

	if c.Index.Path == "" {
		return fmt.Errorf("index.path must not be empty")
	}
	if c.Index.BatchSize < 0 {
		return fmt.Errorf("index.batch_size must be non-negative, got %d", c.Index.BatchSize)
	}
	if c.Datastore.CacheSize < 0 {
		return fmt.Errorf("datastore.cache_size must be non-negative, got %d", c.Datastore.CacheSize)
	}

	if strings.ToLower(c.Server.Transport) != "stdio" {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	return nil
}

// TimeoutDuration parses Timeout. An empty value means no limit beyond the
// gather default.
func (l LockerConfig) TimeoutDuration() (time.Duration, error) {
	if l.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(l.Timeout)
	if err != nil {
		return 0, fmt.Errorf("locker.timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("locker.timeout must be non-negative, got %s", l.Timeout)
	}
	return d, nil
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
