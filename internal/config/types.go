package config

import "time"

// Config represents the complete portrun configuration.
type Config struct {
	Service    ServiceConfig         `yaml:"service"`
	PluginsDir string                `yaml:"plugins_dir"`
	Parse      ParseConfig           `yaml:"parse"`
	Run        RunConfig             `yaml:"run"`
	Workers    map[string]WorkerConf `yaml:"workers,omitempty"`
	History    HistoryConfig         `yaml:"history"`
	API        APIConfig             `yaml:"api,omitempty"`

	// SourcePath is the absolute path the config was loaded from, empty for defaults.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines logging settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json | text
}

// ParseConfig configures the stdin-to-worker flow.
type ParseConfig struct {
	Worker    string `yaml:"worker"`
	ChunkSize int    `yaml:"chunk_size,omitempty"`
}

// RunConfig configures the progress rendering flow.
type RunConfig struct {
	Worker   string `yaml:"worker"`
	Renderer string `yaml:"renderer"` // plain | tui
	Color    bool   `yaml:"color"`
}

// WorkerConf defines per-worker settings.
type WorkerConf struct {
	Config      map[string]any `yaml:"config,omitempty"`
	Timeout     time.Duration  `yaml:"timeout,omitempty"` // zero waits forever
	GracePeriod time.Duration  `yaml:"grace_period,omitempty"`
}

// HistoryConfig defines run history storage.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// APIConfig defines the live mirror HTTP server.
type APIConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Listen      string `yaml:"listen"`
	EventBuffer int    `yaml:"event_buffer,omitempty"`
}

// Renderer names.
const (
	RendererPlain = "plain"
	RendererTUI   = "tui"
)

// Defaults returns a Config with the bundled workers selected.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "portrun",
			LogLevel:  "info",
			LogFormat: "json",
		},
		PluginsDir: "./plugins",
		Parse: ParseConfig{
			Worker:    "display",
			ChunkSize: 64 * 1024,
		},
		Run: RunConfig{
			Worker:   "progress",
			Renderer: RendererPlain,
		},
		Workers: make(map[string]WorkerConf),
		History: HistoryConfig{
			Enabled: false,
			Path:    "./data/history.db",
		},
		API: APIConfig{
			Enabled:     false,
			Listen:      "127.0.0.1:8088",
			EventBuffer: 256,
		},
	}
}

// DefaultGracePeriod is the SIGTERM to SIGKILL delay when none is configured.
const DefaultGracePeriod = 5 * time.Second

// Worker returns the settings for name, with defaults filled in.
func (c *Config) Worker(name string) WorkerConf {
	wc := c.Workers[name]
	if wc.Config == nil {
		wc.Config = make(map[string]any)
	}
	if wc.GracePeriod <= 0 {
		wc.GracePeriod = DefaultGracePeriod
	}
	return wc
}
