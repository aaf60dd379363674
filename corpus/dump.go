package corpus

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/thomcc/miri-tools/types"
)

// DumpFile is a Source backed by a local registry dump in CSV form:
// name,version,recent_downloads per row, optionally preceded by a header
// row. Fetching the dump from the registry is the caller's problem.
type DumpFile struct {
	Path string
}

var _ Source = (*DumpFile)(nil)

// Load parses the dump. When a crate appears on multiple rows, the row
// with the newest parseable version wins, so re-running against an
// append-only dump stays deterministic.
func (d *DumpFile) Load(ctx context.Context) ([]types.CorpusEntry, error) {
	f, err := os.Open(d.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry dump: %w", err)
	}
	defer f.Close()
	return parseDump(ctx, f)
}

func parseDump(ctx context.Context, r io.Reader) ([]types.CorpusEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true

	index := make(map[string]int)
	var entries []types.CorpusEntry
	for row := 0; ; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed registry dump row %d: %w", row+1, err)
		}
		if row == 0 && rec[0] == "name" {
			continue // header
		}
		downloads, err := strconv.ParseUint(rec[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed download count on dump row %d: %w", row+1, err)
		}
		entry := types.CorpusEntry{Name: rec[0], Version: rec[1], Downloads: downloads}
		if i, ok := index[entry.Name]; ok {
			if newerVersion(entry.Version, entries[i].Version) {
				entries[i] = entry
			}
			continue
		}
		index[entry.Name] = len(entries)
		entries = append(entries, entry)
	}
	return entries, nil
}
