// Package doctor validates portrun configuration and worker setup.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/mattjoyce/portrun/internal/config"
	"github.com/mattjoyce/portrun/internal/plugin"
	"github.com/mattjoyce/portrun/internal/protocol"
	"github.com/mattjoyce/portrun/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates configuration against discovered workers.
type Doctor struct {
	cfg      *config.Config
	registry *plugin.Registry

	// checkPath is swapped in tests.
	checkPath func(string) error
}

// New creates a Doctor from a loaded config and worker registry.
func New(cfg *config.Config, registry *plugin.Registry) *Doctor {
	return &Doctor{cfg: cfg, registry: registry, checkPath: storage.CheckHistoryPath}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateServiceConfig(r)
	d.validateWorkerRef(r, "parse.worker", d.cfg.Parse.Worker, protocol.ModeParse)
	d.validateWorkerRef(r, "run.worker", d.cfg.Run.Worker, protocol.ModeRun)
	d.validateWorkerSettings(r)
	d.validateHistory(r)
	d.validateAPIConfig(r)
	d.warnUnusedWorkers(r)
	d.warnMissingEnvVars(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateServiceConfig(r *Result) {
	if d.cfg.PluginsDir == "" {
		d.addError(r, "service", "plugins_dir", "plugins_dir is required")
		return
	}
	info, err := os.Stat(d.cfg.PluginsDir)
	if err != nil || !info.IsDir() {
		d.addError(r, "service", "plugins_dir",
			fmt.Sprintf("plugins_dir %q is not a directory", d.cfg.PluginsDir))
	}
}

// validateWorkerRef checks that the worker selected for a flow exists and
// serves that flow.
func (d *Doctor) validateWorkerRef(r *Result, field, name, mode string) {
	if name == "" {
		d.addError(r, "workers", field, fmt.Sprintf("%s is required", field))
		return
	}
	p, ok := d.registry.Get(name)
	if !ok {
		d.addError(r, "workers", field,
			fmt.Sprintf("worker %q not found in plugins_dir", name))
		return
	}
	if !p.SupportsMode(mode) {
		d.addError(r, "workers", field,
			fmt.Sprintf("worker %q does not support mode %q (modes: %s)", name, mode, strings.Join(p.Modes.Names(), ", ")))
	}
	if missing := p.MissingConfigKeys(d.cfg.Worker(name).Config); len(missing) > 0 {
		for _, key := range missing {
			d.addError(r, "workers", fmt.Sprintf("workers.%s.config.%s", name, key),
				fmt.Sprintf("worker %q requires config key %q", name, key))
		}
	}
}

func (d *Doctor) validateWorkerSettings(r *Result) {
	for _, name := range sortedKeys(d.cfg.Workers) {
		if _, ok := d.registry.Get(name); !ok {
			d.addWarning(r, "workers", fmt.Sprintf("workers.%s", name),
				fmt.Sprintf("settings for %q but no such worker is installed", name))
		}
	}
}

func (d *Doctor) validateHistory(r *Result) {
	if !d.cfg.History.Enabled {
		return
	}
	if err := d.checkPath(d.cfg.History.Path); err != nil {
		d.addError(r, "history", "history.path", err.Error())
	}
}

func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	host, _, err := net.SplitHostPort(d.cfg.API.Listen)
	if err != nil {
		d.addError(r, "api", "api.listen", fmt.Sprintf("invalid listen address %q: %v", d.cfg.API.Listen, err))
		return
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && !ip.IsLoopback()) {
		d.addWarning(r, "api", "api.listen",
			"live mirror is reachable from other hosts and has no authentication")
	}
}

// warnUnusedWorkers flags installed workers that no flow selects.
func (d *Doctor) warnUnusedWorkers(r *Result) {
	for _, p := range d.registry.Sorted() {
		if p.Name == d.cfg.Parse.Worker || p.Name == d.cfg.Run.Worker {
			continue
		}
		if _, configured := d.cfg.Workers[p.Name]; configured {
			continue
		}
		d.addWarning(r, "unused", "",
			fmt.Sprintf("worker %q discovered but not selected or configured", p.Name))
	}
}

// warnMissingEnvVars warns about ${VAR} references left in worker config.
func (d *Doctor) warnMissingEnvVars(r *Result) {
	envVarRe := regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

	for _, name := range sortedKeys(d.cfg.Workers) {
		for key, v := range d.cfg.Workers[name].Config {
			s, ok := v.(string)
			if !ok {
				continue
			}
			for _, m := range envVarRe.FindAllStringSubmatch(s, -1) {
				if os.Getenv(m[1]) == "" {
					d.addWarning(r, "env_vars", fmt.Sprintf("workers.%s.config.%s", name, key),
						fmt.Sprintf("environment variable ${%s} not set", m[1]))
				}
			}
		}
	}
}

func sortedKeys(m map[string]config.WorkerConf) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
