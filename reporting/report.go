// Package reporting shapes a parsed Report for human and machine
// consumers. The heavy lifting (rendering HTML, uploading artifacts)
// belongs to external collaborators; this package only produces the
// structured data and a console summary.
package reporting

import (
	"fmt"
	"time"

	"github.com/thomcc/miri-tools/types"
)

// RecordRow is one package's flattened result for display.
type RecordRow struct {
	Package  string
	Version  string
	Download string
	Lock     string
	Build    string
	UnitTest string
	DocTest  string
	Duration time.Duration
	Passed   bool
	Error    string
}

// ReportData is the presentation model built once from a types.Report.
type ReportData struct {
	Variant      types.ToolVariant
	GeneratedAt  time.Time
	Stats        types.ReportStats
	PassRateText string
	Rows         []RecordRow
}

// Build flattens a report into display rows, preserving corpus order.
func Build(rep *types.Report) ReportData {
	data := ReportData{
		Variant:     rep.Variant,
		GeneratedAt: rep.GeneratedAt,
		Stats:       rep.Stats(),
	}
	data.PassRateText = passRateText(data.Stats)

	for _, rec := range rep.Records {
		row := RecordRow{
			Package:  rec.Package,
			Version:  rec.Version,
			Download: rec.Result(types.PhaseDownload).Outcome.String(),
			Lock:     rec.Result(types.PhaseLock).Outcome.String(),
			Build:    rec.Result(types.PhaseBuild).Outcome.String(),
			UnitTest: rec.Result(types.PhaseUnitTest).Outcome.String(),
			DocTest:  rec.Result(types.PhaseDocTest).Outcome.String(),
			Passed:   rec.Passed(),
			Error:    firstFailureReason(rec),
		}
		for _, p := range types.OrderedPhases {
			row.Duration += rec.Result(p).Duration
		}
		data.Rows = append(data.Rows, row)
	}
	return data
}

// firstFailureReason surfaces the earliest phase's failure reason, which
// is the one that actually determined the package's fate.
func firstFailureReason(rec *types.RunRecord) string {
	for _, p := range types.OrderedPhases {
		o := rec.Result(p).Outcome
		switch o.Kind {
		case types.OutcomeFailure:
			return o.Reason
		case types.OutcomeTimeout:
			return fmt.Sprintf("%s timed out", p)
		}
	}
	return ""
}

func passRateText(s types.ReportStats) string {
	ran := s.Total - s.Skipped
	if ran <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", float64(s.Passed)/float64(ran)*100)
}

// formatDuration trims sub-second noise out of long phase durations.
func formatDuration(d time.Duration) string {
	if d >= time.Minute {
		return d.Round(time.Second).String()
	}
	return d.Round(time.Millisecond).String()
}
