package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file. Fields missing from the
// file keep their Defaults() values.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or set PORTRUN_CONFIG", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	cfg.SourcePath = absPath

	applyEnvOverrides(cfg)
	resolvePaths(cfg, filepath.Dir(absPath))

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads the discovered config file, or falls back to Defaults()
// when none exists. Env overrides apply in both cases.
func LoadDefault() (*Config, error) {
	path, err := DiscoverConfigPath()
	if err != nil {
		cfg := Defaults()
		applyEnvOverrides(cfg)
		if err := validate(cfg); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}
	return Load(path)
}

// DiscoverConfigPath finds the config file by checking standard locations.
// Priority order: $PORTRUN_CONFIG, ~/.config/portrun/config.yaml, ./portrun.yaml
func DiscoverConfigPath() (string, error) {
	if p := os.Getenv("PORTRUN_CONFIG"); p != "" {
		// An explicit path that does not exist is an error, reported by Load.
		return p, nil
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "portrun", "config.yaml")
		if _, err := os.Stat(userConfig); err == nil {
			return userConfig, nil
		}
	}

	if _, err := os.Stat("portrun.yaml"); err == nil {
		return "portrun.yaml", nil
	}

	return "", fmt.Errorf("no config found (checked: $PORTRUN_CONFIG, ~/.config/portrun/config.yaml, ./portrun.yaml)")
}

// applyEnvOverrides lets the flagless entry points be steered from the environment.
func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"PORTRUN_LOG_LEVEL", &cfg.Service.LogLevel},
		{"PORTRUN_LOG_FORMAT", &cfg.Service.LogFormat},
		{"PORTRUN_PLUGINS_DIR", &cfg.PluginsDir},
		{"PORTRUN_PARSE_WORKER", &cfg.Parse.Worker},
		{"PORTRUN_RUN_WORKER", &cfg.Run.Worker},
		{"PORTRUN_RENDERER", &cfg.Run.Renderer},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			*o.dst = v
		}
	}
}

// resolvePaths makes relative paths relative to the config file's directory.
func resolvePaths(cfg *Config, baseDir string) {
	if cfg.PluginsDir != "" && !filepath.IsAbs(cfg.PluginsDir) {
		cfg.PluginsDir = filepath.Join(baseDir, cfg.PluginsDir)
	}
	if cfg.History.Path != "" && !filepath.IsAbs(cfg.History.Path) {
		cfg.History.Path = filepath.Join(baseDir, cfg.History.Path)
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Unset variables keep the placeholder so validation can name them.
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.PluginsDir) == "" {
		return fmt.Errorf("plugins_dir is required")
	}
	if strings.TrimSpace(cfg.Parse.Worker) == "" {
		return fmt.Errorf("parse.worker is required")
	}
	if strings.TrimSpace(cfg.Run.Worker) == "" {
		return fmt.Errorf("run.worker is required")
	}
	if cfg.Parse.ChunkSize < 0 {
		return fmt.Errorf("parse.chunk_size must not be negative")
	}

	switch cfg.Run.Renderer {
	case RendererPlain, RendererTUI:
	default:
		return fmt.Errorf("run.renderer must be %q or %q, got %q", RendererPlain, RendererTUI, cfg.Run.Renderer)
	}

	switch strings.ToLower(cfg.Service.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("service.log_format must be json or text, got %q", cfg.Service.LogFormat)
	}

	if cfg.History.Enabled && strings.TrimSpace(cfg.History.Path) == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}
	if cfg.API.Enabled && strings.TrimSpace(cfg.API.Listen) == "" {
		return fmt.Errorf("api.listen is required when the api is enabled")
	}

	for name, wc := range cfg.Workers {
		if wc.Timeout < 0 {
			return fmt.Errorf("workers.%s.timeout must not be negative", name)
		}
		if wc.GracePeriod < 0 {
			return fmt.Errorf("workers.%s.grace_period must not be negative", name)
		}
		if p := findPlaceholder(wc.Config); p != "" {
			return fmt.Errorf("workers.%s.config references unset environment variable %s", name, p)
		}
	}

	return nil
}

// findPlaceholder returns the first ${VAR} left in a string value of m.
func findPlaceholder(m map[string]any) string {
	for _, v := range m {
		switch val := v.(type) {
		case string:
			if match := envVarPattern.FindString(val); match != "" {
				return match
			}
		case map[string]any:
			if p := findPlaceholder(val); p != "" {
				return p
			}
		}
	}
	return ""
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
