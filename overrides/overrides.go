// Package overrides maps package names to build/test adjustments
// accumulated from known incompatibilities with the instrumented
// toolchains. The table is static data loaded once and injected into the
// worker; lookups are pure and total.
package overrides

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/thomcc/miri-tools/types"
)

// Resolver answers override lookups. Absence of an entry is not an
// error: unknown packages resolve to the zero override.
type Resolver struct {
	table map[string]types.PackageOverride
}

// config is the on-disk shape of the override table.
type config struct {
	Overrides []types.PackageOverride `yaml:"overrides"`
}

// NewResolver builds a resolver from an in-memory table. Used directly in
// tests with synthetic override sets.
func NewResolver(entries []types.PackageOverride) *Resolver {
	table := make(map[string]types.PackageOverride, len(entries))
	for _, o := range entries {
		table[o.Name] = o
	}
	return &Resolver{table: table}
}

// NewResolverFromFile loads the YAML override table at path. A missing
// file yields an empty resolver, since most deployments carry no
// overrides at all.
func NewResolverFromFile(path string) (*Resolver, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewResolver(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read override table: %w", err)
	}
	var cfg config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse override table: %w", err)
	}
	for i, o := range cfg.Overrides {
		if o.Name == "" {
			return nil, fmt.Errorf("override entry %d has no name", i)
		}
	}
	return NewResolver(cfg.Overrides), nil
}

// Resolve returns the override for a package name. Total: unknown names
// return the zero override with the name filled in.
func (r *Resolver) Resolve(name string) types.PackageOverride {
	if o, ok := r.table[name]; ok {
		return o
	}
	return types.PackageOverride{Name: name}
}

// Len reports how many overrides are loaded.
func (r *Resolver) Len() int {
	return len(r.table)
}
