package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/portrun/internal/app"
)

func runForTest(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := runCLI(args, app.Streams{Stdin: strings.NewReader(stdin), Stdout: &out, Stderr: &errOut})
	return code, out.String(), errOut.String()
}

func writeWorkerConfig(t *testing.T, name, mode, body string) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "plugins", name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	manifest := "name: " + name + "\nversion: 0.1.0\nprotocol: 1\nentrypoint: run.sh\nmodes: [" + mode + "]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte("#!/bin/sh\n"+body+"\n"), 0o755))

	cfg := "service:\n  log_level: error\nplugins_dir: ./plugins\nrun:\n  worker: " + name + "\n"
	cfgPath := filepath.Join(root, "portrun.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	t.Setenv("PORTRUN_CONFIG", cfgPath)
}

func TestRejectsArguments(t *testing.T) {
	code, _, stderr := runForTest(t, "", "--worker", "x")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Usage: run")
}

func TestMissingConfigFile(t *testing.T) {
	t.Setenv("PORTRUN_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
	code, _, stderr := runForTest(t, "{}")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "config file not found")
}

func TestRunRendersProgress(t *testing.T) {
	writeWorkerConfig(t, "bar", "run", `cat >/dev/null
printf '{"type":"start","data":"Compiling"}\n'
printf '{"type":"running","data":"[=   ]"}\n'
printf '{"type":"running","data":"[==  ]"}\n'
printf '{"type":"unknown","data":"skip"}\n'
printf '{"type":"done","data":"Finished"}\n'`)

	code, stdout, stderr := runForTest(t, "")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "Compiling\n\x1b[?25l[=   ][==  ]\x1b[?25h\n\nFinished\n", stdout)
}

func TestRunWithoutDoneExitsOne(t *testing.T) {
	writeWorkerConfig(t, "bar", "run", `cat >/dev/null
printf '{"type":"start","data":"Compiling"}\n'`)

	code, stdout, stderr := runForTest(t, "")
	assert.Equal(t, 1, code)
	assert.True(t, strings.HasSuffix(stdout, "\x1b[?25h\n"), "cursor restored: %q", stdout)
	assert.Contains(t, stderr, "without done")
}
