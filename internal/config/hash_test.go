package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHashBytesStable(t *testing.T) {
	a := HashBytes([]byte(`{"a":1}`))
	b := HashBytes([]byte(`{"a":1}`))
	c := HashBytes([]byte(`{"a":2}`))

	if a != b {
		t.Fatal("hash should be deterministic")
	}
	if a == c {
		t.Fatal("different inputs should hash differently")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestGenerateChecksumsWritesManifest(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("plugins_dir: ./plugins\n"), 0600); err != nil {
		t.Fatal(err)
	}

	manifest, err := GenerateChecksums(cfgPath)
	if err != nil {
		t.Fatalf("GenerateChecksums() failed: %v", err)
	}
	if manifest.Hashes["config.yaml"] == "" {
		t.Fatal("expected hash for config.yaml")
	}

	info, err := os.Stat(filepath.Join(tmpDir, ".checksums"))
	if err != nil {
		t.Fatalf("expected .checksums to be written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	loaded, err := LoadChecksums(tmpDir)
	if err != nil {
		t.Fatalf("LoadChecksums() failed: %v", err)
	}
	if loaded.Hashes["config.yaml"] != manifest.Hashes["config.yaml"] {
		t.Fatal("loaded hash differs from generated hash")
	}
}

func TestGenerateChecksumsKeepsOtherEntries(t *testing.T) {
	tmpDir := t.TempDir()
	existing := "version: 1\ngenerated_at: x\nhashes:\n  other.yaml: abc\n"
	if err := os.WriteFile(filepath.Join(tmpDir, ".checksums"), []byte(existing), 0600); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("run:\n  worker: progress\n"), 0600); err != nil {
		t.Fatal(err)
	}

	manifest, err := GenerateChecksums(cfgPath)
	if err != nil {
		t.Fatalf("GenerateChecksums() failed: %v", err)
	}
	if manifest.Hashes["other.yaml"] != "abc" || manifest.Hashes["config.yaml"] == "" {
		t.Fatalf("unexpected hashes: %v", manifest.Hashes)
	}
}

func TestLoadChecksumsMissing(t *testing.T) {
	_, err := LoadChecksums(t.TempDir())
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestLoadChecksumsRejectsVersion(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, ".checksums"), []byte("version: 7\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := LoadChecksums(tmpDir)
	if err == nil || !strings.Contains(err.Error(), "unsupported checksums version") {
		t.Fatalf("expected version error, got %v", err)
	}
}

func TestVerifyFileHashMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := VerifyFileHash(path, "deadbeef"); err == nil {
		t.Fatal("expected mismatch error")
	}
	hash, err := ComputeBlake3Hash(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifyFileHash(path, hash); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
}
