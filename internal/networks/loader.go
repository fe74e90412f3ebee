package networks

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// networksFile is the on-disk layout shared by the TOML and YAML formats
type networksFile struct {
	Networks []NetworkDescriptor `toml:"network" yaml:"networks"`
}

// LoadFile loads a registry from a TOML or YAML file, chosen by extension
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading networks file: %w", err)
	}

	var file networksFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), &file); err != nil {
			return nil, fmt.Errorf("parsing TOML: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported networks file extension %q", ext)
	}

	r := NewRegistry()
	for _, d := range file.Networks {
		if err := r.Register(d); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return r, nil
}

// Load returns the registry from path, or the built-in defaults when path is empty
func Load(path string) (*Registry, error) {
	if path == "" {
		return Defaults(), nil
	}
	return LoadFile(path)
}
