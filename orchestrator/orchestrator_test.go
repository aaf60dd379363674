package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomcc/miri-tools/logging"
	"github.com/thomcc/miri-tools/types"
)

const delim = "f00dfeed-test-delimiter"

// buildBlock renders a worker output block (without the delimiter) the
// way a real worker would.
func buildBlock(name, version string, outcomes map[types.Phase]types.Outcome) string {
	var sb strings.Builder
	fmt.Fprintln(&sb, types.PackageMarker(name, version, types.ToolMiri))
	fmt.Fprintln(&sb, "   Compiling "+name+" v"+version)
	for _, p := range types.OrderedPhases {
		o, ok := outcomes[p]
		if !ok {
			o = types.Success()
		}
		fmt.Fprintln(&sb, types.PhaseMarker(p, types.PhaseResult{Outcome: o, Duration: time.Second}))
	}
	return sb.String()
}

func failedFetchBlock(name, version string) string {
	return buildBlock(name, version, map[types.Phase]types.Outcome{
		types.PhaseDownload: types.Failure("download: exit status 101"),
		types.PhaseLock:     types.Skipped(),
		types.PhaseBuild:    types.Skipped(),
		types.PhaseUnitTest: types.Skipped(),
		types.PhaseDocTest:  types.Skipped(),
	})
}

// fakeContext replays canned blocks instead of running containers.
type fakeContext struct {
	mu      sync.Mutex
	blocks  map[string]string
	crashOn string // spec whose block is cut short by a worker crash
	pending []string
	dead    bool
}

func (c *fakeContext) Feed(spec string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return errors.New("worker is gone")
	}
	c.pending = append(c.pending, spec)
	return nil
}

func (c *fakeContext) NextBlock() ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return nil, false, errors.New("nothing fed")
	}
	spec := c.pending[0]
	c.pending = c.pending[1:]
	name, version, _ := types.ParsePackageSpec(spec)
	if spec == c.crashOn {
		c.dead = true
		partial := types.PackageMarker(name, version, types.ToolMiri) + "\n   Compiling " + name + "\n"
		return []byte(partial), false, nil
	}
	block, ok := c.blocks[spec]
	if !ok {
		block = buildBlock(name, version, nil)
	}
	return []byte(block), true, nil
}

func (c *fakeContext) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.dead
}

func (c *fakeContext) Close() error { return nil }

type fakeProvider struct {
	mu            sync.Mutex
	failAcquire   bool
	failReacquire bool
	acquired      int
	released      int
	releasedNil   int
	blocks        map[string]string
	crashOn       string
}

func (p *fakeProvider) Acquire(ctx context.Context, variant types.ToolVariant) (ExecutionContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAcquire {
		return nil, errors.New("image unavailable")
	}
	if p.failReacquire && p.acquired > 0 {
		return nil, errors.New("image unavailable")
	}
	p.acquired++
	crashOn := p.crashOn
	p.crashOn = "" // a respawned worker does not crash again
	return &fakeContext{blocks: p.blocks, crashOn: crashOn}, nil
}

func (p *fakeProvider) Release(ec ExecutionContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ec == nil {
		p.releasedNil++
		return
	}
	p.released++
}

func corpus(names ...string) []types.CorpusEntry {
	entries := make([]types.CorpusEntry, len(names))
	for i, n := range names {
		entries[i] = types.CorpusEntry{Name: n, Version: "1.0.0", Rank: i + 1}
	}
	return entries
}

func newOrchestrator(t *testing.T, p ContextProvider, fl *logging.FileLogger) *Orchestrator {
	t.Helper()
	o, err := New(Config{
		Provider:   p,
		Delimiter:  delim,
		RunID:      "test-run",
		FileLogger: fl,
	})
	require.NoError(t, err)
	return o
}

func TestOrchestratorRunHappyPath(t *testing.T) {
	fl, err := logging.NewFileLogger(t.TempDir())
	require.NoError(t, err)
	provider := &fakeProvider{}
	o := newOrchestrator(t, provider, fl)

	spec := types.JobSpec{Variant: types.ToolMiri, Corpus: corpus("alpha", "beta", "gamma")}
	rep, err := o.Run(context.Background(), spec)
	require.NoError(t, err)

	require.Len(t, rep.Records, 3)
	for i, name := range []string{"alpha", "beta", "gamma"} {
		assert.Equal(t, name, rep.Records[i].Package)
		assert.True(t, rep.Records[i].Passed(), "package %s", name)
		assert.True(t, fl.Has(name, "1.0.0"), "log for %s", name)
	}
	assert.Equal(t, 1, provider.acquired)
	assert.Equal(t, 1, provider.released)
}

func TestOrchestratorAcquisitionFailureIsFatal(t *testing.T) {
	o := newOrchestrator(t, &fakeProvider{failAcquire: true}, nil)
	_, err := o.Run(context.Background(), types.JobSpec{Variant: types.ToolMiri, Corpus: corpus("alpha")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution context")
}

func TestOrchestratorPackageFailureDoesNotAbortCorpus(t *testing.T) {
	provider := &fakeProvider{blocks: map[string]string{
		"beta==1.0.0": failedFetchBlock("beta", "1.0.0"),
	}}
	o := newOrchestrator(t, provider, nil)

	rep, err := o.Run(context.Background(), types.JobSpec{
		Variant: types.ToolMiri,
		Corpus:  corpus("alpha", "beta", "gamma"),
	})
	require.NoError(t, err, "one failing package must not fail the run")
	require.Len(t, rep.Records, 3)

	alpha, beta, gamma := rep.Records[0], rep.Records[1], rep.Records[2]
	assert.True(t, alpha.Passed())
	assert.Equal(t, types.OutcomeFailure, beta.Result(types.PhaseDownload).Outcome.Kind)
	assert.Equal(t, types.OutcomeSkipped, beta.Result(types.PhaseBuild).Outcome.Kind)
	assert.Equal(t, types.OutcomeSkipped, beta.Result(types.PhaseUnitTest).Outcome.Kind)
	assert.Equal(t, types.OutcomeSkipped, beta.Result(types.PhaseDocTest).Outcome.Kind)
	assert.True(t, gamma.Passed(), "packages after a failure still run")
}

func TestOrchestratorRespawnsCrashedWorker(t *testing.T) {
	provider := &fakeProvider{crashOn: "beta==1.0.0"}
	o := newOrchestrator(t, provider, nil)

	rep, err := o.Run(context.Background(), types.JobSpec{
		Variant: types.ToolMiri,
		Corpus:  corpus("alpha", "beta", "gamma"),
	})
	require.NoError(t, err)
	require.Len(t, rep.Records, 3)

	beta := rep.Records[1]
	assert.Equal(t, "beta", beta.Package)
	// The crashed package keeps its partial output and classifies as
	// incomplete rather than disappearing.
	assert.Equal(t, types.ReasonIncomplete, beta.Result(types.PhaseUnitTest).Outcome.Reason)
	assert.True(t, rep.Records[2].Passed(), "respawned worker finishes the corpus")
	assert.Equal(t, 2, provider.acquired, "a fresh context replaces the crashed one")
}

func TestOrchestratorReacquireFailureIsFatal(t *testing.T) {
	provider := &fakeProvider{crashOn: "alpha==1.0.0", failReacquire: true}
	o := newOrchestrator(t, provider, nil)

	_, err := o.Run(context.Background(), types.JobSpec{
		Variant: types.ToolMiri,
		Corpus:  corpus("alpha", "beta"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reacquire")
	// The crashed context is released exactly once and the failed
	// reacquisition never reaches Release.
	assert.Equal(t, 1, provider.released)
	assert.Equal(t, 0, provider.releasedNil)
}

func TestDockerProviderReleaseNilContext(t *testing.T) {
	assert.NotPanics(t, func() {
		(&DockerProvider{}).Release(nil)
	})
}

func TestOrchestratorParallelJobsKeepCorpusOrder(t *testing.T) {
	provider := &fakeProvider{}
	o, err := New(Config{Provider: provider, Delimiter: delim, Jobs: 3})
	require.NoError(t, err)

	names := []string{"a", "b", "c", "d", "e", "f", "g"}
	rep, err := o.Run(context.Background(), types.JobSpec{Variant: types.ToolMiri, Corpus: corpus(names...)})
	require.NoError(t, err)

	require.Len(t, rep.Records, len(names))
	for i, name := range names {
		assert.Equal(t, name, rep.Records[i].Package, "records stay in corpus order")
	}
	assert.Equal(t, 3, provider.acquired)
}

func TestNewOrchestratorValidation(t *testing.T) {
	_, err := New(Config{Delimiter: delim})
	require.Error(t, err)
	_, err = New(Config{Provider: &fakeProvider{}})
	require.Error(t, err)
}
