package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the yaml configuration file structure.
type Config struct {
	Version string `yaml:"version"`

	Sqlite struct {
		Dsn    string `yaml:"dsn"`
		Prefix string `yaml:"prefix"`
	} `yaml:"sqlite"`

	Log struct {
		Level  string   `yaml:"level"`
		Writer []string `yaml:"writer"`
		File   string   `yaml:"file"`
	} `yaml:"log"`

	Output struct {
		Dir       string `yaml:"dir"`
		MaxSizeMB int    `yaml:"maxSizeMB"`
	} `yaml:"output"`

	Monitor struct {
		TruncateLen      int `yaml:"truncateLen"`
		BundleIntervalMS int `yaml:"bundleIntervalMS"`
		BundleMaxItems   int `yaml:"bundleMaxItems"`
		ClickWindowMS    int `yaml:"clickWindowMS"`
		ClickLimit       int `yaml:"clickLimit"`
		ClickDebounceMS  int `yaml:"clickDebounceMS"`
		EventQueueSize   int `yaml:"eventQueueSize"`
		ReconnectDelayMS int `yaml:"reconnectDelayMS"`
		ProcessTimeoutMS int `yaml:"processTimeoutMS"`
	} `yaml:"monitor"`
}

// BundleInterval returns the flush interval as a duration.
func (c *Config) BundleInterval() time.Duration {
	return time.Duration(c.Monitor.BundleIntervalMS) * time.Millisecond
}

// ClickWindow returns the click rate window as a duration.
func (c *Config) ClickWindow() time.Duration {
	return time.Duration(c.Monitor.ClickWindowMS) * time.Millisecond
}

// ClickDebounce returns the click micro-debounce as a duration.
func (c *Config) ClickDebounce() time.Duration {
	return time.Duration(c.Monitor.ClickDebounceMS) * time.Millisecond
}

// NewConfig creates the default configuration.
func NewConfig() *Config {
	c := &Config{Version: "1.0.0"}
	c.Sqlite.Dsn = "" // empty disables the sqlite event store
	c.Sqlite.Prefix = "devpipe_"
	c.Log.Level = "info"
	c.Log.Writer = []string{"console"}
	c.Log.File = "devpipe.log"
	c.Output.Dir = defaultLogDir()
	c.Output.MaxSizeMB = 50
	c.Monitor.TruncateLen = 200
	c.Monitor.BundleIntervalMS = 5000
	c.Monitor.BundleMaxItems = 50
	c.Monitor.ClickWindowMS = 1000
	c.Monitor.ClickLimit = 3
	c.Monitor.ClickDebounceMS = 200
	c.Monitor.EventQueueSize = 1024
	c.Monitor.ReconnectDelayMS = 2000
	c.Monitor.ProcessTimeoutMS = 10000
	return c
}

// Load reads a yaml config file over the defaults.
func Load(path string) (*Config, error) {
	c := NewConfig()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return c, nil
}

func defaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "devpipe_logs"
	}
	return home + "/Documents/devpipe_logs"
}
