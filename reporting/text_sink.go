package reporting

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RenderTable writes the console summary table for one corpus run.
func RenderTable(w io.Writer, data ReportData) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Corpus run: %s (%d packages, pass rate %s)",
		data.Variant, data.Stats.Total, data.PassRateText))

	t.AppendHeader(table.Row{
		"Package", "Version", "Download", "Lock", "Build", "Unit", "Doc", "Duration", "Error",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Package", WidthMax: 40, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Error", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, row := range data.Rows {
		t.AppendRow(table.Row{
			row.Package,
			row.Version,
			row.Download,
			row.Lock,
			row.Build,
			row.UnitTest,
			row.DocTest,
			formatDuration(row.Duration),
			row.Error,
		})
	}

	t.AppendFooter(table.Row{
		"TOTAL", "",
		fmt.Sprintf("passed %d", data.Stats.Passed),
		fmt.Sprintf("failed %d", data.Stats.Failed),
		fmt.Sprintf("timeout %d", data.Stats.Timeouts),
		fmt.Sprintf("skipped %d", data.Stats.Skipped),
		"", "", "",
	})

	if data.Stats.Failed == 0 && data.Stats.Timeouts == 0 {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}
	t.Render()
}
