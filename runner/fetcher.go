package runner

import (
	"context"
	"io"
)

// Fetcher retrieves a package's source snapshot into the workspace. The
// registry mechanics (mirrors, auth, archive format) live behind this
// capability; the worker only cares about the result.
type Fetcher interface {
	Fetch(ctx context.Context, name, version, dir string, out io.Writer) ExecResult
}

// ExecFetcher shells out to `cargo download`, which resolves the crate
// against the registry and extracts the snapshot into the target dir.
type ExecFetcher struct {
	Cargo string
	Exec  *Executor
}

var _ Fetcher = (*ExecFetcher)(nil)

func (f *ExecFetcher) Fetch(ctx context.Context, name, version, dir string, out io.Writer) ExecResult {
	spec := name
	if version != "" {
		spec = name + "==" + version
	}
	return f.Exec.Run(ctx, CommandSpec{
		Name: f.Cargo,
		Args: []string{DownloadCommand, ExtractFlag, OutputFlag, dir, spec},
	}, out)
}
