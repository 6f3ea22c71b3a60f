package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/ipcviz/backend/internal/shared/types"
)

// Definition is a declarative simulation scenario. Processes are referred
// to by name throughout; the runner maps names to generated ids at replay.
type Definition struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Processes   []ProcessDef    `yaml:"processes"`
	Connections []ConnectionDef `yaml:"connections"`
	Steps       []Step          `yaml:"steps"`
}

// ProcessDef declares a process to spawn.
type ProcessDef struct {
	Name     string         `yaml:"name"`
	Position types.Position `yaml:"position"`
}

// ConnectionDef declares an IPC channel between two named processes.
type ConnectionDef struct {
	From       string `yaml:"from"`
	To         string `yaml:"to"`
	Type       string `yaml:"type"`
	Capacity   int    `yaml:"capacity"`
	MaxReaders int    `yaml:"max_readers"`
}

// Step is a single protocol operation.
type Step struct {
	Op   string `yaml:"op"` // "send" or "consume"
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Load parses a single scenario file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", def.Name, err)
	}
	return &def, nil
}

// LoadDir loads every .yaml/.yml file in dir, sorted by name. A missing
// directory yields an empty slice, not an error.
func LoadDir(dir string) ([]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read scenario dir %s: %w", dir, err)
	}

	var defs []*Definition
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		def, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

// Validate checks internal consistency: every connection and step must
// refer to a declared process, and every step op must be known.
func (d *Definition) Validate() error {
	known := make(map[string]bool, len(d.Processes))
	for _, p := range d.Processes {
		if p.Name == "" {
			return fmt.Errorf("process with empty name")
		}
		if known[p.Name] {
			return fmt.Errorf("duplicate process name %q", p.Name)
		}
		known[p.Name] = true
	}
	for i, c := range d.Connections {
		if !known[c.From] || !known[c.To] {
			return fmt.Errorf("connection %d refers to unknown process", i)
		}
		switch types.ConnectionType(c.Type) {
		case types.TypePipe, types.TypeQueue, types.TypeMemory:
		default:
			return fmt.Errorf("connection %d has unknown type %q", i, c.Type)
		}
	}
	for i, s := range d.Steps {
		if s.Op != "send" && s.Op != "consume" {
			return fmt.Errorf("step %d has unknown op %q", i, s.Op)
		}
		if !known[s.From] || !known[s.To] {
			return fmt.Errorf("step %d refers to unknown process", i)
		}
	}
	return nil
}
