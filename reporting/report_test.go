package reporting

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomcc/miri-tools/types"
)

func sampleReport() *types.Report {
	pass := &types.RunRecord{
		Package: "alpha", Version: "1.0.0", Variant: types.ToolMiri,
		Phases: map[types.Phase]types.PhaseResult{
			types.PhaseDownload: {Outcome: types.Success(), Duration: time.Second},
			types.PhaseLock:     {Outcome: types.Success(), Duration: time.Second},
			types.PhaseBuild:    {Outcome: types.Success(), Duration: 30 * time.Second},
			types.PhaseUnitTest: {Outcome: types.Success(), Duration: time.Minute},
			types.PhaseDocTest:  {Outcome: types.Success(), Duration: 10 * time.Second},
		},
		DependencySnapshot: "[[package]]\nname = \"alpha\"\n",
	}
	fail := &types.RunRecord{
		Package: "beta", Version: "2.0.0", Variant: types.ToolMiri,
		Phases: map[types.Phase]types.PhaseResult{
			types.PhaseDownload: {Outcome: types.Failure("download: exit status 101")},
			types.PhaseLock:     {Outcome: types.Skipped()},
			types.PhaseBuild:    {Outcome: types.Skipped()},
			types.PhaseUnitTest: {Outcome: types.Skipped()},
			types.PhaseDocTest:  {Outcome: types.Skipped()},
		},
	}
	return &types.Report{
		Variant:     types.ToolMiri,
		GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Records:     []*types.RunRecord{pass, fail},
	}
}

func TestBuildPreservesOrderAndReasons(t *testing.T) {
	data := Build(sampleReport())

	require.Len(t, data.Rows, 2)
	assert.Equal(t, "alpha", data.Rows[0].Package)
	assert.True(t, data.Rows[0].Passed)
	assert.Empty(t, data.Rows[0].Error)
	assert.Equal(t, 102*time.Second, data.Rows[0].Duration)

	assert.Equal(t, "beta", data.Rows[1].Package)
	assert.False(t, data.Rows[1].Passed)
	assert.Contains(t, data.Rows[1].Error, "download")

	assert.Equal(t, 1, data.Stats.Passed)
	assert.Equal(t, 1, data.Stats.Failed)
	assert.Equal(t, "50.0%", data.PassRateText)
}

func TestFirstFailureReasonPrefersEarliestPhase(t *testing.T) {
	rec := &types.RunRecord{
		Phases: map[types.Phase]types.PhaseResult{
			types.PhaseDownload: {Outcome: types.Success()},
			types.PhaseLock:     {Outcome: types.Success()},
			types.PhaseBuild:    {Outcome: types.Failure("build: exit status 101")},
			types.PhaseUnitTest: {Outcome: types.Timeout()},
		},
	}
	assert.Equal(t, "build: exit status 101", firstFailureReason(rec))
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	RenderTable(&buf, Build(sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "beta")
	assert.Contains(t, out, "miri")
	assert.Contains(t, out, "TOTAL")
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, WriteJSON(path, sampleReport()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "miri", decoded["variant"])
	records := decoded["records"].([]any)
	require.Len(t, records, 2)
	first := records[0].(map[string]any)
	assert.Equal(t, "alpha", first["package"])
	phases := first["phases"].(map[string]any)
	assert.Equal(t, "success", phases["unitTest"])
}
