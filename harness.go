package mtw

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/thomcc/miri-tools/corpus"
	"github.com/thomcc/miri-tools/logging"
	"github.com/thomcc/miri-tools/metrics"
	"github.com/thomcc/miri-tools/orchestrator"
	"github.com/thomcc/miri-tools/reporting"
	"github.com/thomcc/miri-tools/types"
)

// Harness owns one end-to-end corpus run from corpus selection through
// report rendering.
type Harness struct {
	cfg       Config
	source    corpus.Source
	provider  orchestrator.ContextProvider
	fileLog   *logging.FileLogger
	delimiter string
}

// NewHarness assembles the default production wiring: a registry dump
// corpus source, docker-backed execution contexts, and a per-package
// log tree under cfg.LogDir.
func NewHarness(cfg Config) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fileLog, err := logging.NewFileLogger(cfg.LogDir)
	if err != nil {
		return nil, fmt.Errorf("creating log tree: %w", err)
	}
	delimiter := uuid.NewString()
	provider := &orchestrator.DockerProvider{
		Delimiter:     delimiter,
		PhaseTimeout:  cfg.TimeoutPerPhase,
		MemoryLimitGB: cfg.MemoryLimitGB,
		Log:           cfg.Log,
	}
	h := &Harness{
		cfg:       cfg,
		source:    &corpus.DumpFile{Path: cfg.DumpPath},
		provider:  provider,
		fileLog:   fileLog,
		delimiter: delimiter,
	}
	return h, nil
}

// newHarnessWith is the test seam: same assembly, injected collaborators.
func newHarnessWith(cfg Config, src corpus.Source, provider orchestrator.ContextProvider, fileLog *logging.FileLogger, delimiter string) *Harness {
	return &Harness{
		cfg:       cfg,
		source:    src,
		provider:  provider,
		fileLog:   fileLog,
		delimiter: delimiter,
	}
}

// Run selects the corpus, builds the context image if needed, drives the
// orchestrator over every package, and renders the report. Package-level
// failures are part of the report and do not make Run return an error;
// only harness-level faults do.
func (h *Harness) Run(ctx context.Context) (*types.Report, error) {
	start := time.Now()

	selected, err := h.selectCorpus(ctx)
	if err != nil {
		return nil, NewRuntimeError(err)
	}
	if len(selected) == 0 {
		h.cfg.Log.Warn("corpus selection is empty, nothing to run")
	}

	if builder, ok := h.provider.(imageBuilder); ok && !h.cfg.SkipImageBuild {
		if err := builder.BuildImage(ctx, h.cfg.Variant); err != nil {
			metrics.RecordError(err)
			return nil, NewRuntimeError(fmt.Errorf("building %s context image: %w", h.cfg.Variant, err))
		}
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Provider:   h.provider,
		Delimiter:  h.delimiter,
		Jobs:       h.cfg.Jobs,
		RunID:      h.delimiter,
		FileLogger: h.fileLog,
		Log:        h.cfg.Log,
	})
	if err != nil {
		return nil, NewRuntimeError(err)
	}

	rep, err := orch.Run(ctx, types.JobSpec{
		Variant:         h.cfg.Variant,
		Corpus:          selected,
		TimeoutPerPhase: h.cfg.TimeoutPerPhase,
	})
	if err != nil {
		metrics.RecordError(err)
		return nil, NewRuntimeError(err)
	}

	metrics.RecordRunDuration(h.cfg.Variant, h.delimiter, time.Since(start))

	reporting.RenderTable(os.Stdout, reporting.Build(rep))
	if h.cfg.ReportFile != "" {
		if err := reporting.WriteJSON(h.cfg.ReportFile, rep); err != nil {
			return nil, NewRuntimeError(fmt.Errorf("writing report: %w", err))
		}
	}
	return rep, nil
}

// selectCorpus loads the package universe, applies the explicit list if
// one was given, truncates to the requested size, and drops packages
// with stored logs when reruns are disabled.
func (h *Harness) selectCorpus(ctx context.Context) ([]types.CorpusEntry, error) {
	universe, err := h.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading package universe: %w", err)
	}

	var selected []types.CorpusEntry
	if h.cfg.CrateList != "" {
		selected, err = corpus.FromList(h.cfg.CrateList, universe)
		if err != nil {
			return nil, fmt.Errorf("reading crate list: %w", err)
		}
	} else {
		selected = universe
	}
	selected = corpus.TopN(selected, h.cfg.Crates)

	if h.cfg.RerunWhen == RerunNever && h.fileLog != nil {
		kept := selected[:0]
		for _, e := range selected {
			if h.fileLog.Has(e.Name, e.Version) {
				h.cfg.Log.Debugw("skipping package with stored log", "package", e.Spec())
				continue
			}
			kept = append(kept, e)
		}
		selected = kept
	}
	return selected, nil
}

// imageBuilder is implemented by providers that need a one-time image
// build before contexts can be acquired.
type imageBuilder interface {
	BuildImage(ctx context.Context, variant types.ToolVariant) error
}
