package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/thomcc/miri-tools/overrides"
	"github.com/thomcc/miri-tools/types"
)

// Config holds everything a Worker needs. The override resolver is
// injected rather than consulted globally so tests can supply synthetic
// tables.
type Config struct {
	Variant      types.ToolVariant
	WorkspaceDir string
	Delimiter    string
	Timeout      time.Duration
	CargoBinary  string
	Resolver     *overrides.Resolver
	Fetcher      Fetcher // optional; defaults to ExecFetcher
	Log          *zap.SugaredLogger
}

// Worker is the Package Runner. It consumes newline-delimited
// name==version specs from its input, drives the per-package phase state
// machine, and writes raw output plus structured markers to its output.
// Packages are processed strictly sequentially: the next spec is not read
// before the current package's delimiter has been written.
type Worker struct {
	cfg   Config
	in    io.Reader
	out   io.Writer
	exec  *Executor
	fetch Fetcher
}

// NewWorker validates the config and builds a worker.
func NewWorker(cfg Config, in io.Reader, out io.Writer) (*Worker, error) {
	if cfg.Variant == "" {
		return nil, fmt.Errorf("tool variant is required")
	}
	if cfg.WorkspaceDir == "" {
		return nil, fmt.Errorf("workspace dir is required")
	}
	if cfg.Delimiter == "" {
		return nil, fmt.Errorf("delimiter is required (set %s)", types.EnvTestEndDelimiter)
	}
	if cfg.CargoBinary == "" {
		cfg.CargoBinary = DefaultCargoBinary
	}
	if cfg.Resolver == nil {
		cfg.Resolver = overrides.NewResolver(nil)
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}
	ex := NewExecutor(cfg.Timeout, cfg.Log)
	fetch := cfg.Fetcher
	if fetch == nil {
		fetch = &ExecFetcher{Cargo: cfg.CargoBinary, Exec: ex}
	}
	return &Worker{cfg: cfg, in: in, out: out, exec: ex, fetch: fetch}, nil
}

// Run processes package specs until the input closes. Per-package
// failures never abort the loop; only a canceled context or an input
// error does.
func (w *Worker) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(w.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		w.runPackage(ctx, line)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// results tracks per-phase outcomes while the state machine advances.
type results struct {
	w      io.Writer
	marked map[types.Phase]bool
}

func newResults(w io.Writer) *results {
	return &results{w: w, marked: make(map[types.Phase]bool)}
}

// emit writes the phase's marker the moment the phase resolves, so that a
// crash mid-package still leaves partial classification in the stream.
func (r *results) emit(p types.Phase, res types.PhaseResult) {
	r.marked[p] = true
	fmt.Fprintln(r.w, types.PhaseMarker(p, res))
}

// skipRemaining marks every phase that has not resolved yet as skipped.
func (r *results) skipRemaining() {
	for _, p := range types.OrderedPhases {
		if !r.marked[p] {
			r.emit(p, types.PhaseResult{Outcome: types.Skipped()})
		}
	}
}

// runPackage drives Purge → Fetch → Resolve → Lock → Build → UnitTest →
// DocTest → Emit for a single spec line. The terminating delimiter is
// written on every exit path.
func (w *Worker) runPackage(ctx context.Context, line string) {
	name, version, specErr := types.ParsePackageSpec(line)
	if specErr != nil {
		name, version = line, ""
	}

	fmt.Fprintln(w.out, types.PackageMarker(name, version, w.cfg.Variant))
	res := newResults(w.out)
	defer func() {
		res.skipRemaining()
		fmt.Fprintln(w.out, types.DelimiterLine(w.cfg.Delimiter))
	}()

	if specErr != nil {
		res.emit(types.PhaseDownload, failed(types.ReasonDownload, specErr, 0))
		return
	}

	log := w.cfg.Log.With("package", name, "version", version)
	log.Infow("processing package")

	override := w.cfg.Resolver.Resolve(name)
	if override.Skip {
		log.Infow("package is on the skip list")
		return // every phase records Skipped
	}

	// Purge before fetch, unconditionally. Cross-package contamination is
	// a correctness problem, not a disk-space one.
	if err := Purge(w.cfg.WorkspaceDir); err != nil {
		log.Errorw("workspace purge failed", "err", err)
		res.emit(types.PhaseDownload, failed(types.ReasonWorkspace, err, 0))
		return
	}

	fetchRes := w.fetch.Fetch(ctx, name, version, w.cfg.WorkspaceDir, w.out)
	res.emit(types.PhaseDownload, classify(fetchRes, types.ReasonDownload))
	if !fetchRes.OK() {
		return
	}

	srcDir := sourceDir(w.cfg.WorkspaceDir)

	lockRes := w.exec.Run(ctx, w.command(srcDir, []string{UpdateCommand}), w.out)
	res.emit(types.PhaseLock, classify(lockRes, types.ReasonLock))
	w.emitLockfile(srcDir)
	if !lockRes.OK() {
		return
	}

	buildRes := w.exec.Run(ctx, w.command(srcDir, w.cargoArgs(types.PhaseBuild, override.ExtraArgs)), w.out)
	res.emit(types.PhaseBuild, classify(buildRes, types.ReasonBuild))
	if !buildRes.OK() {
		return
	}

	// Unit and doc tests are independent phases with independent budgets:
	// a unit-test failure or timeout must not hide a doc-test regression.
	unitRes := w.exec.Run(ctx, w.command(srcDir, w.cargoArgs(types.PhaseUnitTest, override.ExtraArgs)), w.out)
	res.emit(types.PhaseUnitTest, classify(unitRes, types.ReasonTest))

	docRes := w.exec.Run(ctx, w.command(srcDir, w.cargoArgs(types.PhaseDocTest, override.ExtraArgs)), w.out)
	res.emit(types.PhaseDocTest, classify(docRes, types.ReasonTest))

	log.Infow("package done",
		"unitTest", classify(unitRes, types.ReasonTest).Outcome.String(),
		"docTest", classify(docRes, types.ReasonTest).Outcome.String())
}

// command builds a CommandSpec with the variant's instrumented-toolchain
// environment applied.
func (w *Worker) command(dir string, args []string) CommandSpec {
	return CommandSpec{
		Name: w.cfg.CargoBinary,
		Args: args,
		Dir:  dir,
		Env:  w.cfg.Variant.BuildEnv(),
	}
}

// cargoArgs assembles the cargo invocation for one phase, merging any
// override extra args ahead of the phase-specific flags.
func (w *Worker) cargoArgs(phase types.Phase, extra []string) []string {
	var args []string
	if w.cfg.Variant == types.ToolMiri {
		args = append(args, MiriSubcommand)
	}
	args = append(args, TestCommand)
	args = append(args, extra...)

	switch phase {
	case types.PhaseBuild:
		args = append(args, NoRunFlag)
	case types.PhaseUnitTest:
		args = append(args, JobsFlag, SingleJob, TestArgSeparator, SingleThreadedArg)
	case types.PhaseDocTest:
		args = append(args, DocFlag, JobsFlag, SingleJob, TestArgSeparator, SingleThreadedArg)
	}
	return args
}

// emitLockfile records the resolved dependency graph verbatim in the
// stream, fenced so the aggregator can lift it into the RunRecord.
func (w *Worker) emitLockfile(srcDir string) {
	data, err := os.ReadFile(filepath.Join(srcDir, LockfileName))
	if err != nil {
		w.cfg.Log.Debugw("no lockfile to snapshot", "err", err)
		return
	}
	fmt.Fprintln(w.out, types.LockfileMarker(true))
	fmt.Fprint(w.out, string(data))
	if len(data) > 0 && data[len(data)-1] != '\n' {
		fmt.Fprintln(w.out)
	}
	fmt.Fprintln(w.out, types.LockfileMarker(false))
}

// classify converts a raw exec result into the phase outcome taxonomy.
func classify(res ExecResult, reason string) types.PhaseResult {
	out := types.PhaseResult{Duration: res.Duration}
	switch {
	case res.TimedOut:
		out.Outcome = types.Timeout()
	case res.Err != nil:
		out.Outcome = types.Failure(fmt.Sprintf("%s: %v", reason, res.Err))
	default:
		out.Outcome = types.Success()
	}
	return out
}

func failed(reason string, err error, dur time.Duration) types.PhaseResult {
	return types.PhaseResult{
		Outcome:  types.Failure(fmt.Sprintf("%s: %v", reason, err)),
		Duration: dur,
	}
}
