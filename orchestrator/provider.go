package orchestrator

import (
	"context"

	"github.com/thomcc/miri-tools/types"
)

// ExecutionContext is one isolated worker process: package specs go in
// one line at a time, delimited raw output comes back. Implementations
// own the underlying isolation mechanism (container, sandbox, bare
// process).
type ExecutionContext interface {
	// Feed writes one package spec line to the worker's input.
	Feed(spec string) error
	// NextBlock reads output up to the next delimiter. terminated is
	// false when the stream ended (worker crash) before the delimiter;
	// whatever partial output was read is still returned.
	NextBlock() (block []byte, terminated bool, err error)
	// Alive reports whether the worker process is still running.
	Alive() bool
	Close() error
}

// ContextProvider provisions and tears down execution contexts. Failure
// to acquire is fatal to the whole run: there is no partial corpus
// without an execution context.
type ContextProvider interface {
	Acquire(ctx context.Context, variant types.ToolVariant) (ExecutionContext, error)
	Release(ec ExecutionContext)
}
