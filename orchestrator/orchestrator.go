// Package orchestrator drives one corpus run: it provisions isolated
// execution contexts, streams package names into them, and collects the
// delimited output streams for aggregation. It never inspects log
// content itself; classification is the aggregator's job.
package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thomcc/miri-tools/aggregator"
	"github.com/thomcc/miri-tools/logging"
	"github.com/thomcc/miri-tools/metrics"
	"github.com/thomcc/miri-tools/types"
)

// Config wires an Orchestrator.
type Config struct {
	Provider   ContextProvider
	Delimiter  string
	Jobs       int // execution contexts fed in parallel; 0 or 1 = sequential
	RunID      string
	FileLogger *logging.FileLogger // optional per-package log tree
	Log        *zap.SugaredLogger
}

// Orchestrator runs a JobSpec to completion and hands back the Report.
type Orchestrator struct {
	cfg Config
	log *zap.SugaredLogger
}

// New validates the config and builds an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("context provider is required")
	}
	if cfg.Delimiter == "" {
		return nil, fmt.Errorf("delimiter is required")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}
	return &Orchestrator{cfg: cfg, log: cfg.Log}, nil
}

// Run processes the whole corpus. Per-package failures are recorded and
// never abort the run; only context acquisition failure is fatal. The
// returned report has exactly one record per corpus entry, in corpus
// order.
func (o *Orchestrator) Run(ctx context.Context, spec types.JobSpec) (*types.Report, error) {
	jobs := o.cfg.Jobs
	if jobs < 1 {
		jobs = 1
	}
	if jobs > len(spec.Corpus) && len(spec.Corpus) > 0 {
		jobs = len(spec.Corpus)
	}

	queue := make(chan types.CorpusEntry)
	var mu sync.Mutex
	var stream bytes.Buffer

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(queue)
		for _, entry := range spec.Corpus {
			select {
			case queue <- entry:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for i := 0; i < jobs; i++ {
		g.Go(func() error {
			return o.runContext(gctx, spec.Variant, queue, &mu, &stream)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	parsed, err := aggregator.Parse(bytes.NewReader(stream.Bytes()), o.cfg.Delimiter)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse result stream")
	}
	rep := aggregator.Reconcile(parsed, spec.Variant, spec.Corpus)
	for _, rec := range rep.Records {
		metrics.RecordPackage(spec.Variant, o.cfg.RunID, rec)
	}
	return rep, nil
}

// runContext owns one execution context for its lifetime, feeding it
// entries from the shared queue. A crashed worker is replaced and the
// interrupted package keeps whatever partial output it produced; a
// context that cannot be (re)acquired fails the run.
func (o *Orchestrator) runContext(ctx context.Context, variant types.ToolVariant,
	queue <-chan types.CorpusEntry, mu *sync.Mutex, stream *bytes.Buffer) error {

	ec, err := o.cfg.Provider.Acquire(ctx, variant)
	if err != nil {
		return errors.Wrap(err, "failed to acquire execution context")
	}
	defer func() {
		if ec != nil {
			o.cfg.Provider.Release(ec)
		}
	}()

	for entry := range queue {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.log.Infow("running package", "package", entry.Name, "version", entry.Version, "rank", entry.Rank)

		var block []byte
		terminated := false
		if err := ec.Feed(entry.Spec()); err == nil {
			block, terminated, err = ec.NextBlock()
			if err != nil {
				o.log.Errorw("failed reading worker output", "package", entry.Name, "err", err)
			}
		} else {
			o.log.Errorw("failed feeding worker", "package", entry.Name, "err", err)
		}

		o.appendBlock(mu, stream, entry, block)
		if o.cfg.FileLogger != nil {
			if err := o.cfg.FileLogger.Write(entry.Name, entry.Version, block); err != nil {
				o.log.Errorw("failed writing package log", "package", entry.Name, "err", err)
				metrics.RecordError(err)
			}
		}
		o.log.Infow("finished package", "package", entry.Name, "version", entry.Version)

		if !terminated || !ec.Alive() {
			o.log.Warnw("execution context crashed, standing up a new one", "package", entry.Name)
			metrics.RecordError(errors.New("execution context crashed"))
			o.cfg.Provider.Release(ec)
			ec, err = o.cfg.Provider.Acquire(ctx, variant)
			if err != nil {
				// ec is nil here; the deferred release must not see it.
				return errors.Wrap(err, "failed to reacquire execution context")
			}
		}
	}
	return nil
}

// appendBlock adds one package's raw output to the combined stream,
// restoring the delimiter framing regardless of how the block ended. An
// empty block still gets a header so the package cannot vanish from the
// stream.
func (o *Orchestrator) appendBlock(mu *sync.Mutex, stream *bytes.Buffer, entry types.CorpusEntry, block []byte) {
	mu.Lock()
	defer mu.Unlock()
	if len(bytes.TrimSpace(block)) == 0 {
		stream.WriteString(types.PackageMarker(entry.Name, entry.Version, "") + "\n")
	}
	stream.Write(block)
	if len(block) > 0 && block[len(block)-1] != '\n' {
		stream.WriteByte('\n')
	}
	stream.WriteString(types.DelimiterLine(o.cfg.Delimiter) + "\n")
}
