// Package corpus selects the ranked set of packages a regression run
// processes. The registry dump download itself is an external concern;
// this package consumes an already-materialized dump through the Source
// interface and applies deterministic top-N selection.
package corpus

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/thomcc/miri-tools/types"
)

// Source produces the full ranked package universe a corpus is selected
// from. Implementations must be deterministic for a fixed upstream dump.
type Source interface {
	Load(ctx context.Context) ([]types.CorpusEntry, error)
}

// TopN returns the N most-downloaded entries in deterministic order:
// downloads descending, ties broken by name so that equal popularity
// still yields reproducible output. Rank is assigned 1-based.
func TopN(entries []types.CorpusEntry, n int) []types.CorpusEntry {
	sorted := make([]types.CorpusEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Downloads != sorted[j].Downloads {
			return sorted[i].Downloads > sorted[j].Downloads
		}
		return sorted[i].Name < sorted[j].Name
	})
	if n > 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	for i := range sorted {
		sorted[i].Rank = i + 1
	}
	return sorted
}

// FromList reads a whitespace-separated list of name or name==version
// specs and resolves each against the universe. Lines naming unknown
// packages are dropped; a version given in the list wins over the
// universe's version. The result keeps the universe's popularity
// ordering.
func FromList(path string, universe []types.CorpusEntry) ([]types.CorpusEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read crate list: %w", err)
	}
	byName := make(map[string]types.CorpusEntry, len(universe))
	for _, e := range universe {
		byName[e.Name] = e
	}

	var selected []types.CorpusEntry
	for _, spec := range strings.Fields(string(data)) {
		name, version, err := types.ParsePackageSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("bad crate list entry %q: %w", spec, err)
		}
		entry, ok := byName[name]
		if !ok {
			continue
		}
		if version != "" {
			entry.Version = version
		}
		selected = append(selected, entry)
	}
	return TopN(selected, 0), nil
}

// canonical normalizes crate versions into the x/mod semver form.
func canonical(version string) string {
	return "v" + strings.TrimPrefix(version, "v")
}

// newerVersion reports whether a is a strictly newer semver than b.
// Unparseable versions always lose.
func newerVersion(a, b string) bool {
	ca, cb := canonical(a), canonical(b)
	if !semver.IsValid(ca) {
		return false
	}
	if !semver.IsValid(cb) {
		return true
	}
	return semver.Compare(ca, cb) > 0
}
