package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// GetPath retrieves a value from the configuration using a dot-notation path,
// e.g. "run.worker" or "workers.progress.config.steps".
func (c *Config) GetPath(path string) (any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return getValue(m, path)
}

func getValue(m map[string]any, path string) (any, error) {
	parts := strings.Split(path, ".")
	var current any = m

	for _, part := range parts {
		if part == "" {
			continue
		}

		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q breaks at %q (not a map)", path, part)
		}

		val, exists := m[part]
		if !exists {
			return nil, fmt.Errorf("path %q: key %q not found", path, part)
		}
		current = val
	}

	return current, nil
}

func findNode(node *yaml.Node, path string, create bool) (*yaml.Node, error) {
	current := node

	for _, part := range strings.Split(path, ".") {
		if current.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%q is not a mapping", part)
		}

		var next *yaml.Node
		for i := 0; i+1 < len(current.Content); i += 2 {
			if current.Content[i].Value == part {
				next = current.Content[i+1]
				break
			}
		}

		if next == nil {
			if !create {
				return nil, fmt.Errorf("key %q not found", part)
			}
			// Intermediate keys become mappings; the leaf is overwritten by the caller.
			key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: part}
			next = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			current.Content = append(current.Content, key, next)
		}
		current = next
	}

	return current, nil
}

// SetPath writes value at path into the file the config was loaded from.
// The edited file must load cleanly or the original bytes are restored.
// A sibling .checksums file is refreshed so the edit passes verification.
func (c *Config) SetPath(path, value string) error {
	if c.SourcePath == "" {
		return fmt.Errorf("no config file loaded (defaults are in use)")
	}
	if strings.Trim(path, ".") == "" {
		return fmt.Errorf("empty config path")
	}

	original, err := os.ReadFile(c.SourcePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(original, &root); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	if root.Kind == 0 {
		root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return fmt.Errorf("config file is not a YAML document")
	}

	target, err := findNode(root.Content[0], strings.Trim(path, "."), true)
	if err != nil {
		return fmt.Errorf("failed to navigate/create path %q: %w", path, err)
	}
	target.Kind = yaml.ScalarNode
	target.Content = nil
	target.Value = value
	target.Tag = guessTag(value)

	candidate, err := yaml.Marshal(&root)
	if err != nil {
		return err
	}
	return c.persistWithValidation(candidate, original)
}

func guessTag(v string) string {
	if v == "true" || v == "false" {
		return "!!bool"
	}
	isDigit := true
	for i, c := range v {
		if i == 0 && c == '-' {
			continue
		}
		if c < '0' || c > '9' {
			isDigit = false
			break
		}
	}
	if isDigit && v != "" && v != "-" {
		return "!!int"
	}
	return "!!str"
}

func (c *Config) persistWithValidation(candidate, original []byte) error {
	target := c.SourcePath
	mode := os.FileMode(0644)
	if info, statErr := os.Stat(target); statErr == nil {
		mode = info.Mode().Perm()
	}

	_, checksumErr := LoadChecksums(filepath.Dir(target))
	tracked := checksumErr == nil

	rollback := func(cause error) error {
		if restoreErr := os.WriteFile(target, original, mode); restoreErr != nil {
			return fmt.Errorf("validation failed (%v) and rollback failed (%v)", cause, restoreErr)
		}
		if tracked {
			if _, err := GenerateChecksums(target); err != nil {
				return fmt.Errorf("validation failed (%v) and checksum restore failed (%v)", cause, err)
			}
		}
		return fmt.Errorf("validation failed: %w", cause)
	}

	if err := os.WriteFile(target, candidate, mode); err != nil {
		return fmt.Errorf("failed to persist config change: %w", err)
	}
	if tracked {
		if _, err := GenerateChecksums(target); err != nil {
			return rollback(err)
		}
	}

	if _, err := Load(target); err != nil {
		return rollback(err)
	}
	return nil
}
