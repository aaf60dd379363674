package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/thomcc/miri-tools/types"
)

// jsonRecord is the machine-readable shape consumed by the external
// renderer and uploader. Raw logs live in the log tree, not here.
type jsonRecord struct {
	Package            string            `json:"package"`
	Version            string            `json:"version"`
	Phases             map[string]string `json:"phases"`
	DependencySnapshot string            `json:"dependency_snapshot,omitempty"`
}

type jsonReport struct {
	Variant     types.ToolVariant `json:"variant"`
	GeneratedAt time.Time         `json:"generated_at"`
	Stats       types.ReportStats `json:"stats"`
	Records     []jsonRecord      `json:"records"`
}

// WriteJSON writes the structured report to path.
func WriteJSON(path string, rep *types.Report) error {
	out := jsonReport{
		Variant:     rep.Variant,
		GeneratedAt: rep.GeneratedAt,
		Stats:       rep.Stats(),
	}
	for _, rec := range rep.Records {
		jr := jsonRecord{
			Package:            rec.Package,
			Version:            rec.Version,
			Phases:             make(map[string]string, len(types.OrderedPhases)),
			DependencySnapshot: rec.DependencySnapshot,
		}
		for _, p := range types.OrderedPhases {
			jr.Phases[string(p)] = rec.Result(p).Outcome.String()
		}
		out.Records = append(out.Records, jr)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
