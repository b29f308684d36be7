// Package config loads the catalogd configuration file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/catalogd/internal/ports"
)

// FileName is the configuration file looked up by default.
const FileName = "catalogd.yaml"

// Config is the catalogd configuration.
type Config struct {
	// PackagesDir holds one directory per installed plugin package.
	PackagesDir string `yaml:"packages_dir"`
	// DataDir holds the remote catalog table and plugin preferences.
	DataDir string `yaml:"data_dir"`
	// ManifestURL is the base URL of the remote manifest.
	ManifestURL string `yaml:"manifest_url"`
	// UserAgent is sent with manifest requests.
	UserAgent string `yaml:"user_agent"`
	// HTTPTimeout bounds every HTTP request, including plugin requests.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	Sync   SyncConfig   `yaml:"sync"`
	Loader LoaderConfig `yaml:"loader"`
	Watch  WatchConfig  `yaml:"watch"`
	Log    LogConfig    `yaml:"log"`

	// Debug registers the bundled test catalog.
	Debug bool `yaml:"debug"`
}

// SyncConfig configures the remote sync.
type SyncConfig struct {
	// MinInterval throttles unforced refreshes.
	MinInterval time.Duration `yaml:"min_interval"`
	// Interval is the period of background refreshes.
	Interval time.Duration `yaml:"interval"`
	// OnStart refreshes as soon as the agent starts.
	OnStart bool `yaml:"on_start"`
}

// LoaderConfig configures plugin loading.
type LoaderConfig struct {
	// Workers bounds concurrent plugin loads; 0 uses GOMAXPROCS.
	Workers int `yaml:"workers"`
	// MemoryLimitPages caps the memory of WASM plugins, in 64 KiB pages.
	MemoryLimitPages uint32 `yaml:"memory_limit_pages"`
	// Timeout bounds each plugin load, constructor included; 0 disables it.
	Timeout time.Duration `yaml:"timeout"`
}

// WatchConfig configures the package directory watcher.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the default configuration rooted at ~/.catalogd.
func Default() *Config {
	base := ".catalogd"
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, ".catalogd")
	}

	return &Config{
		PackagesDir: filepath.Join(base, "packages"),
		DataDir:     filepath.Join(base, "data"),
		ManifestURL: "https://catalogs.catalogd.dev/repo",
		UserAgent:   "catalogd/1.0",
		HTTPTimeout: 30 * time.Second,
		Sync: SyncConfig{
			MinInterval: 5 * time.Minute,
			Interval:    time.Hour,
			OnStart:     true,
		},
		Loader: LoaderConfig{
			MemoryLimitPages: 256,
			Timeout:          30 * time.Second,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 250 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration at path over the defaults. An empty path
// looks for FileName in the working directory and falls back to the
// defaults when there is none.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = FileName
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if explicit {
				return nil, NewConfigNotFoundError(path)
			}
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, NewConfigParseError(path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.PackagesDir == "" {
		errs.add("packages_dir", "must not be empty", "Point it at the directory holding plugin packages.")
	}
	if c.DataDir == "" {
		errs.add("data_dir", "must not be empty", "Point it at a writable directory.")
	}
	if u, err := url.Parse(c.ManifestURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs.add("manifest_url", fmt.Sprintf("%q is not an absolute URL", c.ManifestURL),
			"Use a URL such as https://example.com/repo.")
	}
	if c.HTTPTimeout <= 0 {
		errs.add("http_timeout", "must be positive", "Try 30s.")
	}
	if c.Sync.MinInterval < 0 {
		errs.add("sync.min_interval", "must not be negative", "Use 0 to disable throttling.")
	}
	if c.Sync.Interval < time.Second {
		errs.add("sync.interval", "must be at least 1s", "Try 1h.")
	}
	if c.Loader.Workers < 0 {
		errs.add("loader.workers", "must not be negative", "Use 0 for one worker per CPU.")
	}
	if c.Loader.Timeout < 0 {
		errs.add("loader.timeout", "must not be negative", "Use 0 to disable the load timeout.")
	}
	if _, err := ports.ParseLevel(c.Log.Level); err != nil {
		errs.add("log.level", err.Error(), "Use debug, info, warn or error.")
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs.add("log.format", fmt.Sprintf("unknown format %q", c.Log.Format), "Use text or json.")
	}

	return errs.orNil()
}

// RemoteTablePath returns where the remote catalog table is stored.
func (c *Config) RemoteTablePath() string {
	return filepath.Join(c.DataDir, "remote_catalogs.yaml")
}

// PreferencesDir returns where plugin preferences are stored.
func (c *Config) PreferencesDir() string {
	return filepath.Join(c.DataDir, "prefs")
}
