package seskeep

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all seskeep configuration.
type Config struct {
	// DBPath is the persisted session registry. Only used when Persist is on.
	DBPath string `yaml:"db_path"`

	// Persist keeps cached sessions across separate full-suite invocations
	// (interactive dev-loop mode). Off by default: sessions then live only
	// for the current run.
	Persist bool `yaml:"persist"`

	// AdminAddr is the listen address of the HTTP control surface.
	AdminAddr string `yaml:"admin_addr"`

	Browser BrowserConfig `yaml:"browser"`
	Watch   WatchConfig   `yaml:"watch"`
}

// BrowserConfig controls the managed Chrome instance.
type BrowserConfig struct {
	// RemoteURL connects to an external Chrome instead of launching one.
	RemoteURL       string        `yaml:"remote_url"`
	MemoryLimitMB   int64         `yaml:"memory_limit_mb"`
	RecycleInterval time.Duration `yaml:"recycle_interval"`
	Stealth         bool          `yaml:"stealth"`
}

// WatchConfig controls the persisted-store watcher that reconciles the
// in-memory registry when another process mutates the database.
type WatchConfig struct {
	Interval time.Duration `yaml:"interval"`
	Debounce time.Duration `yaml:"debounce"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "seskeep.db"
	}
	if c.AdminAddr == "" {
		c.AdminAddr = ":8790"
	}
	if c.Browser.MemoryLimitMB <= 0 {
		c.Browser.MemoryLimitMB = 1024
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Watch.Interval <= 0 {
		c.Watch.Interval = time.Second
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
