package doctor

import (
	"errors"
	"strings"
	"testing"

	"github.com/mattjoyce/portrun/internal/config"
	"github.com/mattjoyce/portrun/internal/plugin"
)

func validConfig(t *testing.T) *config.Config {
	cfg := config.Defaults()
	cfg.PluginsDir = t.TempDir()
	return cfg
}

func registryWith(plugins ...*plugin.Plugin) *plugin.Registry {
	r := plugin.NewRegistry()
	for _, p := range plugins {
		_ = r.Add(p)
	}
	return r
}

func worker(name string, modes ...string) *plugin.Plugin {
	p := &plugin.Plugin{Name: name, Protocol: 1}
	for _, m := range modes {
		p.Modes = append(p.Modes, plugin.Mode{Name: m})
	}
	return p
}

func bundled() *plugin.Registry {
	return registryWith(worker("display", "parse"), worker("progress", "run"))
}

func newDoctor(cfg *config.Config, reg *plugin.Registry) *Doctor {
	d := New(cfg, reg)
	d.checkPath = func(string) error { return nil }
	return d
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	r := newDoctor(validConfig(t), bundled()).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got: %v", r.Warnings)
	}
}

func TestValidate_MissingPluginsDir(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.PluginsDir = ""
	r := newDoctor(cfg, bundled()).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "service", "plugins_dir")
}

func TestValidate_PluginsDirNotADirectory(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.PluginsDir = cfg.PluginsDir + "/missing"
	r := newDoctor(cfg, bundled()).Validate()
	assertHasError(t, r, "service", "not a directory")
}

func TestValidate_UnknownWorker(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Run.Worker = "spinner"
	r := newDoctor(cfg, bundled()).Validate()
	assertHasError(t, r, "workers", `worker "spinner" not found`)
	assertHasWarning(t, r, "unused", `"progress"`)
}

func TestValidate_WrongMode(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Parse.Worker = "progress"
	r := newDoctor(cfg, bundled()).Validate()
	assertHasError(t, r, "workers", `does not support mode "parse"`)
}

func TestValidate_RequiredConfigKey(t *testing.T) {
	t.Parallel()
	p := worker("progress", "run")
	p.ConfigKeys = &plugin.ConfigKeys{Required: []string{"label"}}
	cfg := validConfig(t)

	r := newDoctor(cfg, registryWith(worker("display", "parse"), p)).Validate()
	assertHasError(t, r, "workers", `requires config key "label"`)

	cfg.Workers["progress"] = config.WorkerConf{Config: map[string]any{"label": "Build"}}
	r = newDoctor(cfg, registryWith(worker("display", "parse"), p)).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
}

func TestValidate_SettingsForMissingWorker(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Workers["ghost"] = config.WorkerConf{}
	r := newDoctor(cfg, bundled()).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	assertHasWarning(t, r, "workers", `"ghost"`)
}

func TestValidate_HistoryPath(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.History.Enabled = true
	d := New(cfg, bundled())
	d.checkPath = func(string) error { return errors.New(`history path is on network filesystem "nfs"`) }

	r := d.Validate()
	assertHasError(t, r, "history", "network filesystem")
}

func TestValidate_APIListen(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.API.Enabled = true

	cfg.API.Listen = "not-an-address"
	assertHasError(t, newDoctor(cfg, bundled()).Validate(), "api", "invalid listen address")

	cfg.API.Listen = "0.0.0.0:8088"
	r := newDoctor(cfg, bundled()).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	assertHasWarning(t, r, "api", "other hosts")

	cfg.API.Listen = ":8088"
	assertHasWarning(t, newDoctor(cfg, bundled()).Validate(), "api", "other hosts")
}

func TestValidate_MissingEnvVar(t *testing.T) {
	cfg := validConfig(t)
	t.Setenv("PORTRUN_DOCTOR_UNSET", "")
	cfg.Workers["progress"] = config.WorkerConf{Config: map[string]any{"label": "${PORTRUN_DOCTOR_UNSET}"}}
	r := newDoctor(cfg, bundled()).Validate()
	assertHasWarning(t, r, "env_vars", "PORTRUN_DOCTOR_UNSET")
}

func TestFormatHuman_Valid(t *testing.T) {
	t.Parallel()
	out := FormatHuman(&Result{Valid: true})
	if out != "Configuration valid.\n" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFormatHuman_Errors(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:    false,
		Errors:   []Issue{{Category: "test", Field: "x.y", Message: "broken"}},
		Warnings: []Issue{{Category: "unused", Message: "idle"}},
	}
	out := FormatHuman(r)
	if !strings.Contains(out, "ERROR [test] x.y: broken") || !strings.Contains(out, "WARN  [unused] idle") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()
	out, err := FormatJSON(&Result{Valid: true})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"valid": true`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

// --- helpers ---

func assertHasError(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, e := range r.Errors {
		if e.Category == category && strings.Contains(e.Message, substring) {
			return
		}
	}
	t.Fatalf("expected error with category=%q containing %q, got: %v", category, substring, r.Errors)
}

func assertHasWarning(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, w := range r.Warnings {
		if w.Category == category && strings.Contains(w.Message, substring) {
			return
		}
	}
	t.Fatalf("expected warning with category=%q containing %q, got: %v", category, substring, r.Warnings)
}
