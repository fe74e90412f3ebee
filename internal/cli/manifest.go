package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/pendergraft/contraship/internal/chains"
	"github.com/pendergraft/contraship/internal/deployments/domain"
	"github.com/pendergraft/contraship/internal/validation"
)

// manifestFiles is the search order for the project manifest
var manifestFiles = []string{"contraship.toml", ".contraship.toml"}

// Manifest is the project-level TOML file listing what to deploy
type Manifest struct {
	Project string `toml:"project,omitempty"`
	// Root is the directory artifact metadata sources are read from, relative to the manifest
	Root string `toml:"root,omitempty"`
	// Networks are the default targets when --network is not given
	Networks  []string             `toml:"networks,omitempty"`
	Server    string               `toml:"server,omitempty"`
	Contracts []ContractEntry      `toml:"contract"`
	Mocks     map[string]MockEntry `toml:"mocks,omitempty"`

	dir string
}

// ContractEntry is one [[contract]] table
type ContractEntry struct {
	Name         string   `toml:"name"`
	Artifact     string   `toml:"artifact"`
	Dependencies []string `toml:"dependencies,omitempty"`
	Args         []any    `toml:"args,omitempty"`
}

// MockEntry is one [mocks.<dependency>] table
type MockEntry struct {
	Contract string `toml:"contract"`
	Artifact string `toml:"artifact"`
	Args     []any  `toml:"args,omitempty"`
}

// loadManifest loads the manifest from --config or the first file found in the
// working directory. Returns the manifest and the path it was loaded from.
func loadManifest() (*Manifest, string, error) {
	if cfgFile != "" {
		m, err := loadManifestFromPath(cfgFile)
		return m, cfgFile, err
	}

	for _, name := range manifestFiles {
		if _, err := os.Stat(name); err == nil {
			m, err := loadManifestFromPath(name)
			return m, name, err
		}
	}
	return nil, "", os.ErrNotExist
}

// loadManifestSilent returns nil when no manifest exists and warns on parse failures
func loadManifestSilent() *Manifest {
	m, _, err := loadManifest()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load manifest: %v\n", err)
		}
		return nil
	}
	return m
}

func loadManifestFromPath(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	m.dir = filepath.Dir(abs)

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	var errs []error
	if len(m.Contracts) == 0 {
		errs = append(errs, errors.New("no [[contract]] entries"))
	}

	seen := make(map[string]bool)
	for i, c := range m.Contracts {
		if err := validation.ValidateContractName(c.Name); err != nil {
			errs = append(errs, fmt.Errorf("contract %d: %w", i, err))
			continue
		}
		if seen[c.Name] {
			errs = append(errs, fmt.Errorf("contract %q declared twice", c.Name))
		}
		seen[c.Name] = true
		if c.Artifact == "" {
			errs = append(errs, fmt.Errorf("contract %q: artifact is required", c.Name))
		}
		for _, dep := range c.Dependencies {
			if err := validation.ValidateDependencyName(dep); err != nil {
				errs = append(errs, fmt.Errorf("contract %q: %w", c.Name, err))
			}
		}
	}

	for dep, mock := range m.Mocks {
		if err := validation.ValidateDependencyName(dep); err != nil {
			errs = append(errs, fmt.Errorf("mock %q: %w", dep, err))
		}
		if err := validation.ValidateContractName(mock.Contract); err != nil {
			errs = append(errs, fmt.Errorf("mock %q: %w", dep, err))
		}
		if mock.Artifact == "" {
			errs = append(errs, fmt.Errorf("mock %q: artifact is required", dep))
		}
	}

	return errors.Join(errs...)
}

// path resolves p against the manifest's directory
func (m *Manifest) path(p string) string {
	if filepath.IsAbs(p) || m.dir == "" {
		return p
	}
	return filepath.Join(m.dir, p)
}

// SourceRoot returns the directory contract sources are read from
func (m *Manifest) SourceRoot() string {
	return m.path(m.Root)
}

// ContractSpecs loads every contract's artifact, in manifest order
func (m *Manifest) ContractSpecs() ([]domain.ContractSpec, error) {
	root := m.SourceRoot()
	specs := make([]domain.ContractSpec, 0, len(m.Contracts))
	for _, c := range m.Contracts {
		artifact, err := chains.LoadArtifact(m.path(c.Artifact))
		if err != nil {
			return nil, fmt.Errorf("contract %s: %w", c.Name, err)
		}
		specs = append(specs, domain.ContractSpec{
			Name:            c.Name,
			Artifact:        artifact,
			Dependencies:    c.Dependencies,
			ConstructorArgs: c.Args,
			SourceRoot:      root,
		})
	}
	return specs, nil
}

// MockSpecs loads the development network stand-ins keyed by dependency
func (m *Manifest) MockSpecs() (map[string]domain.MockSpec, error) {
	mocks := make(map[string]domain.MockSpec, len(m.Mocks))
	for dep, e := range m.Mocks {
		artifact, err := chains.LoadArtifact(m.path(e.Artifact))
		if err != nil {
			return nil, fmt.Errorf("mock %s: %w", dep, err)
		}
		mocks[dep] = domain.MockSpec{
			ContractName:    e.Contract,
			Artifact:        artifact,
			ConstructorArgs: e.Args,
		}
	}
	return mocks, nil
}
