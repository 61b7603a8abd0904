package plugin

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/portrun/internal/protocol"
)

// Mode declares a flow a worker can be started in.
type Mode struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// Modes is a list of supported modes.
//
// Accepted formats:
//   - string array: modes: [parse, run]
//   - object array: modes: [{name: run, description: "..."}]
type Modes []Mode

func (m *Modes) UnmarshalYAML(n *yaml.Node) error {
	if n == nil {
		*m = nil
		return nil
	}
	if n.Kind != yaml.SequenceNode {
		return fmt.Errorf("modes must be a sequence")
	}

	out := make([]Mode, 0, len(n.Content))
	for _, item := range n.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			out = append(out, Mode{Name: strings.TrimSpace(item.Value)})
		case yaml.MappingNode:
			var tmp Mode
			if err := item.Decode(&tmp); err != nil {
				return fmt.Errorf("invalid mode object: %w", err)
			}
			tmp.Name = strings.TrimSpace(tmp.Name)
			out = append(out, tmp)
		default:
			return fmt.Errorf("invalid mode entry (must be string or object)")
		}
	}

	*m = out
	return nil
}

// Names returns the mode names in manifest order.
func (m Modes) Names() []string {
	out := make([]string, 0, len(m))
	for _, mode := range m {
		out = append(out, mode.Name)
	}
	return out
}

func validMode(name string) bool {
	return name == protocol.ModeParse || name == protocol.ModeRun
}

// Manifest defines the structure of a worker's manifest.yaml file.
type Manifest struct {
	Name        string      `yaml:"name"`
	Version     string      `yaml:"version"`
	Protocol    int         `yaml:"protocol"`
	Entrypoint  string      `yaml:"entrypoint"`
	Description string      `yaml:"description,omitempty"`
	Modes       Modes       `yaml:"modes"`
	ConfigKeys  *ConfigKeys `yaml:"config_keys,omitempty"`
}

// ConfigKeys defines required and optional configuration keys for a worker.
type ConfigKeys struct {
	Required []string `yaml:"required,omitempty"`
	Optional []string `yaml:"optional,omitempty"`
}

// Plugin represents a discovered and validated worker.
type Plugin struct {
	Name        string // Worker name from manifest
	Path        string // Absolute path to worker directory
	Entrypoint  string // Absolute path to entrypoint executable
	Protocol    int    // Protocol version
	Version     string
	Description string
	Modes       Modes
	ConfigKeys  *ConfigKeys
}

// SupportsMode checks if the worker can be started in the given mode.
func (p *Plugin) SupportsMode(mode string) bool {
	for _, m := range p.Modes {
		if m.Name == mode {
			return true
		}
	}
	return false
}

// MissingConfigKeys returns required keys absent from cfg, in manifest order.
func (p *Plugin) MissingConfigKeys(cfg map[string]any) []string {
	if p.ConfigKeys == nil {
		return nil
	}
	var missing []string
	for _, key := range p.ConfigKeys.Required {
		if _, ok := cfg[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}
