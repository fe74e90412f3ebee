// Package networks provides the static registry of chains a deployment can target.
package networks

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/pendergraft/contraship/internal/validation"
)

// ErrUnknownNetwork is returned when a chain ID has no registered descriptor.
var ErrUnknownNetwork = errors.New("unknown network")

// NetworkDescriptor describes one chain. Descriptors are immutable once registered;
// the registry hands out copies.
type NetworkDescriptor struct {
	ChainID               int64             `toml:"chain_id" yaml:"chain_id" json:"chainId"`
	Name                  string            `toml:"name" yaml:"name" json:"name"`
	IsDevelopment         bool              `toml:"development" yaml:"development" json:"development"`
	ConfirmationsRequired uint64            `toml:"confirmations" yaml:"confirmations" json:"confirmations"`
	KnownAddresses        map[string]string `toml:"known_addresses" yaml:"known_addresses" json:"knownAddresses,omitempty"`
	RPCURL                string            `toml:"rpc_url" yaml:"rpc_url" json:"rpcUrl,omitempty"`
	ExplorerAPIURL        string            `toml:"explorer_api_url" yaml:"explorer_api_url" json:"explorerApiUrl,omitempty"`
}

// KnownAddress returns the static address registered for a dependency.
func (d NetworkDescriptor) KnownAddress(dependency string) (string, bool) {
	addr, ok := d.KnownAddresses[dependency]
	return addr, ok
}

// Validate checks a descriptor before it is registered.
func (d NetworkDescriptor) Validate() error {
	var errs []error
	if err := validation.ValidateChainID(d.ChainID); err != nil {
		errs = append(errs, err)
	}
	if d.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	for dep, addr := range d.KnownAddresses {
		if err := validation.ValidateDependencyName(dep); err != nil {
			errs = append(errs, fmt.Errorf("known address %q: %w", dep, err))
		}
		if err := validation.ValidateAddress(addr); err != nil {
			errs = append(errs, fmt.Errorf("known address %q: %w", dep, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("network %q (%d): %w", d.Name, d.ChainID, errors.Join(errs...))
	}
	return nil
}

func (d NetworkDescriptor) clone() NetworkDescriptor {
	d.KnownAddresses = maps.Clone(d.KnownAddresses)
	return d
}

// Registry maps chain IDs to network descriptors.
type Registry struct {
	networks map[int64]NetworkDescriptor
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		networks: make(map[int64]NetworkDescriptor),
	}
}

// Register adds a descriptor, rejecting invalid ones and duplicate chain IDs
func (r *Registry) Register(d NetworkDescriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if existing, ok := r.networks[d.ChainID]; ok {
		return fmt.Errorf("chain ID %d already registered as %q", d.ChainID, existing.Name)
	}
	r.networks[d.ChainID] = d.clone()
	return nil
}

// Describe returns the descriptor for a chain ID
func (r *Registry) Describe(chainID int64) (NetworkDescriptor, error) {
	d, ok := r.networks[chainID]
	if !ok {
		return NetworkDescriptor{}, fmt.Errorf("%w: chain ID %d", ErrUnknownNetwork, chainID)
	}
	return d.clone(), nil
}

// IsDevelopmentNetwork reports whether a chain uses mocks and skips verification.
// Unknown chains are not development networks.
func (r *Registry) IsDevelopmentNetwork(chainID int64) bool {
	d, ok := r.networks[chainID]
	return ok && d.IsDevelopment
}

// Lookup finds a descriptor by network name
func (r *Registry) Lookup(name string) (NetworkDescriptor, bool) {
	for _, d := range r.networks {
		if d.Name == name {
			return d.clone(), true
		}
	}
	return NetworkDescriptor{}, false
}

// List returns all descriptors ordered by chain ID
func (r *Registry) List() []NetworkDescriptor {
	ids := slices.Sorted(maps.Keys(r.networks))
	out := make([]NetworkDescriptor, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.networks[id].clone())
	}
	return out
}

// WithRPCOverrides returns a copy of the registry with RPC URLs replaced per chain ID
func (r *Registry) WithRPCOverrides(overrides map[int64]string) *Registry {
	out := NewRegistry()
	for id, d := range r.networks {
		d = d.clone()
		if url, ok := overrides[id]; ok {
			d.RPCURL = url
		}
		out.networks[id] = d
	}
	return out
}
