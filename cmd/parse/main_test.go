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

	cfg := "service:\n  log_level: error\nplugins_dir: ./plugins\nparse:\n  worker: " + name + "\n"
	cfgPath := filepath.Join(root, "portrun.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	t.Setenv("PORTRUN_CONFIG", cfgPath)
}

func TestRejectsArguments(t *testing.T) {
	code, _, stderr := runForTest(t, "", "--worker", "x")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Usage: parse")
}

func TestMissingConfigFile(t *testing.T) {
	t.Setenv("PORTRUN_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
	code, _, stderr := runForTest(t, "{}")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "config file not found")
}

func TestParsePrintsWorkerMessages(t *testing.T) {
	writeWorkerConfig(t, "echoer", "parse", `read line
printf '{"type":"start","data":"got input"}\n'
printf '{"type":"done","data":{"bytes":%d}}\n' "${#line}"`)

	code, stdout, stderr := runForTest(t, "[1,\n2]")
	require.Equal(t, 0, code, stderr)

	lines := strings.Split(strings.TrimSuffix(stdout, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "received chunk: 6 bytes", lines[0])
	assert.Equal(t, "ok", lines[1])
	assert.Equal(t, `{"type":"start","data":"got input"}`, lines[2])
	assert.True(t, strings.HasPrefix(lines[3], `{"type":"done","data":{"bytes":`), lines[3])
}

func TestParseMalformedInput(t *testing.T) {
	writeWorkerConfig(t, "echoer", "parse", `printf '{"type":"done","data":"never"}\n'`)

	code, stdout, stderr := runForTest(t, `{"a":1`)
	assert.Equal(t, 1, code)
	assert.NotContains(t, stdout, "never")
	assert.Contains(t, stderr, "malformed input (6 bytes)")
}
