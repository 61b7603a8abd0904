package plugin

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func writeWorker(t *testing.T, root, name, manifest string, mode os.FileMode) string {
	t.Helper()
	pluginDir := filepath.Join(root, name)
	if err := os.MkdirAll(pluginDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(pluginDir, "manifest.yaml"), []byte(manifest), 0644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(pluginDir, "run.sh"), []byte("#!/bin/sh\n"), mode); err != nil {
		t.Fatalf("write entrypoint: %v", err)
	}
	return pluginDir
}

func TestDiscover(t *testing.T) {
	tests := []struct {
		name      string
		setupFn   func(t *testing.T) string // Returns plugins directory
		wantCount int
		wantErr   bool
		checkFn   func(t *testing.T, reg *Registry)
	}{
		{
			name: "valid worker discovered",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				writeWorker(t, dir, "progress", `name: progress
version: 1.0.0
protocol: 1
entrypoint: run.sh
modes: [run]
`, 0755)
				return dir
			},
			wantCount: 1,
			checkFn: func(t *testing.T, reg *Registry) {
				p, ok := reg.Get("progress")
				if !ok {
					t.Fatal("progress not found")
				}
				if p.Protocol != 1 {
					t.Error("protocol version mismatch")
				}
				if !p.SupportsMode("run") {
					t.Error("should support run mode")
				}
				if p.SupportsMode("parse") {
					t.Error("should not support parse mode")
				}
				if filepath.Base(p.Entrypoint) != "run.sh" || !filepath.IsAbs(p.Entrypoint) {
					t.Errorf("unexpected entrypoint %q", p.Entrypoint)
				}
			},
		},
		{
			name: "object mode list",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				writeWorker(t, dir, "display", `name: display
version: 0.2.0
protocol: 1
entrypoint: run.sh
modes:
  - name: parse
    description: echoes its input
`, 0755)
				return dir
			},
			wantCount: 1,
			checkFn: func(t *testing.T, reg *Registry) {
				p, _ := reg.Get("display")
				if p == nil || p.Modes[0].Description != "echoes its input" {
					t.Fatalf("unexpected modes: %+v", p)
				}
			},
		},
		{
			name: "duplicate name keeps first",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				m := "name: dup\nversion: 1.0.0\nprotocol: 1\nentrypoint: run.sh\nmodes: [run]\n"
				writeWorker(t, dir, "a", m, 0755)
				writeWorker(t, dir, "b", m, 0755)
				return dir
			},
			wantCount: 1,
			checkFn: func(t *testing.T, reg *Registry) {
				p, _ := reg.Get("dup")
				if filepath.Base(p.Path) != "a" {
					t.Errorf("expected first discovered worker, got %s", p.Path)
				}
			},
		},
		{
			name: "directory without manifest skipped",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				os.Mkdir(filepath.Join(dir, "no-manifest"), 0755)
				return dir
			},
			wantCount: 0,
		},
		{
			name: "unsupported protocol skipped",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				writeWorker(t, dir, "bad-protocol", "name: bad\nprotocol: 99\nentrypoint: run.sh\nmodes: [run]\n", 0755)
				return dir
			},
			wantCount: 0,
		},
		{
			name: "non-executable entrypoint skipped",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				writeWorker(t, dir, "non-exec", "name: non-exec\nprotocol: 1\nentrypoint: run.sh\nmodes: [run]\n", 0644)
				return dir
			},
			wantCount: 0,
		},
		{
			name: "nonexistent directory",
			setupFn: func(t *testing.T) string {
				return "/nonexistent/path"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pluginsDir := tt.setupFn(t)

			logger := func(level, msg string, args ...any) {}

			reg, err := Discover(pluginsDir, logger)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Discover() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			if len(reg.All()) != tt.wantCount {
				t.Errorf("Discover() found %d plugins, want %d", len(reg.All()), tt.wantCount)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, reg)
			}
		})
	}
}

func TestDiscoverManyRequiresRoot(t *testing.T) {
	if _, err := DiscoverMany([]string{" ", ""}, nil); err == nil {
		t.Fatal("expected error with no usable roots")
	}
}

func TestValidateManifest(t *testing.T) {
	tests := []struct {
		name     string
		manifest *Manifest
		wantErr  bool
	}{
		{
			name:     "valid manifest",
			manifest: &Manifest{Name: "test", Protocol: 1, Entrypoint: "run.sh", Modes: Modes{{Name: "run"}}},
		},
		{
			name:     "missing name",
			manifest: &Manifest{Protocol: 1, Entrypoint: "run.sh", Modes: Modes{{Name: "run"}}},
			wantErr:  true,
		},
		{
			name:     "missing protocol",
			manifest: &Manifest{Name: "test", Entrypoint: "run.sh", Modes: Modes{{Name: "run"}}},
			wantErr:  true,
		},
		{
			name:     "missing entrypoint",
			manifest: &Manifest{Name: "test", Protocol: 1, Modes: Modes{{Name: "run"}}},
			wantErr:  true,
		},
		{
			name:     "missing modes",
			manifest: &Manifest{Name: "test", Protocol: 1, Entrypoint: "run.sh"},
			wantErr:  true,
		},
		{
			name:     "path traversal in entrypoint",
			manifest: &Manifest{Name: "test", Protocol: 1, Entrypoint: "../evil/run.sh", Modes: Modes{{Name: "run"}}},
			wantErr:  true,
		},
		{
			name:     "invalid mode",
			manifest: &Manifest{Name: "test", Protocol: 1, Entrypoint: "run.sh", Modes: Modes{{Name: "poll"}}},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateManifest(tt.manifest)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateManifest() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestModesUnmarshalRejectsScalar(t *testing.T) {
	var m Manifest
	if err := yaml.Unmarshal([]byte("modes: run\n"), &m); err == nil {
		t.Fatal("expected error for scalar modes")
	}
}

func TestValidateTrust(t *testing.T) {
	tests := []struct {
		name    string
		setupFn func(t *testing.T) (entrypoint, pluginPath, pluginsDir string)
		wantErr bool
	}{
		{
			name: "valid executable",
			setupFn: func(t *testing.T) (string, string, string) {
				dir := t.TempDir()
				pluginDir := filepath.Join(dir, "test")
				os.Mkdir(pluginDir, 0755)
				entrypoint := filepath.Join(pluginDir, "run.sh")
				os.WriteFile(entrypoint, []byte("#!/bin/sh\n"), 0755)
				return entrypoint, pluginDir, dir
			},
		},
		{
			name: "non-executable",
			setupFn: func(t *testing.T) (string, string, string) {
				dir := t.TempDir()
				pluginDir := filepath.Join(dir, "test")
				os.Mkdir(pluginDir, 0755)
				entrypoint := filepath.Join(pluginDir, "run.sh")
				os.WriteFile(entrypoint, []byte("#!/bin/sh\n"), 0644)
				return entrypoint, pluginDir, dir
			},
			wantErr: true,
		},
		{
			name: "symlink escaping plugin directory",
			setupFn: func(t *testing.T) (string, string, string) {
				dir := t.TempDir()
				outside := filepath.Join(t.TempDir(), "evil.sh")
				os.WriteFile(outside, []byte("#!/bin/sh\n"), 0755)
				pluginDir := filepath.Join(dir, "test")
				os.Mkdir(pluginDir, 0755)
				entrypoint := filepath.Join(pluginDir, "run.sh")
				if err := os.Symlink(outside, entrypoint); err != nil {
					t.Skip("symlinks unsupported")
				}
				return entrypoint, pluginDir, dir
			},
			wantErr: true,
		},
		{
			name: "world-writable plugin directory",
			setupFn: func(t *testing.T) (string, string, string) {
				dir := t.TempDir()
				pluginDir := filepath.Join(dir, "test")
				os.Mkdir(pluginDir, 0755)
				if err := os.Chmod(pluginDir, 0777); err != nil {
					t.Skip("cannot set world-writable on this filesystem")
				}
				info, _ := os.Stat(pluginDir)
				if info.Mode().Perm()&0002 == 0 {
					t.Skip("filesystem does not support world-writable directories")
				}
				entrypoint := filepath.Join(pluginDir, "run.sh")
				os.WriteFile(entrypoint, []byte("#!/bin/sh\n"), 0755)
				return entrypoint, pluginDir, dir
			},
			wantErr: true,
		},
		{
			name: "nonexistent entrypoint",
			setupFn: func(t *testing.T) (string, string, string) {
				dir := t.TempDir()
				pluginDir := filepath.Join(dir, "test")
				os.Mkdir(pluginDir, 0755)
				return filepath.Join(pluginDir, "nonexistent.sh"), pluginDir, dir
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entrypoint, pluginPath, pluginsDir := tt.setupFn(t)
			err := validateTrust(entrypoint, pluginPath, pluginsDir)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateTrust() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPluginSupportsModeAndConfigKeys(t *testing.T) {
	p := &Plugin{
		Modes:      Modes{{Name: "parse"}, {Name: "run"}},
		ConfigKeys: &ConfigKeys{Required: []string{"steps", "label"}},
	}

	if !p.SupportsMode("parse") || !p.SupportsMode("run") {
		t.Error("should support both modes")
	}
	if p.SupportsMode("poll") {
		t.Error("should not support poll")
	}

	missing := p.MissingConfigKeys(map[string]any{"steps": 3})
	if len(missing) != 1 || missing[0] != "label" {
		t.Errorf("unexpected missing keys: %v", missing)
	}
	if got := (&Plugin{}).MissingConfigKeys(nil); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestRegistrySorted(t *testing.T) {
	reg := NewRegistry()
	for _, n := range []string{"zeta", "alpha", "mid"} {
		if err := reg.Add(&Plugin{Name: n}); err != nil {
			t.Fatal(err)
		}
	}
	if err := reg.Add(&Plugin{Name: "mid"}); err == nil {
		t.Fatal("expected duplicate error")
	}

	got := reg.Sorted()
	if got[0].Name != "alpha" || got[1].Name != "mid" || got[2].Name != "zeta" {
		t.Errorf("unexpected order: %v, %v, %v", got[0].Name, got[1].Name, got[2].Name)
	}
}
