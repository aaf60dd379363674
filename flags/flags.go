package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "MIRI_TOOLS"

// prefixEnvVar returns the env var fallback list for a flag.
func prefixEnvVar(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	Tool = &cli.StringFlag{
		Name:     "tool",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVar("TOOL"),
		Usage:    "Instrumented toolchain to run under ('miri' or 'asan')",
	}
	Crates = &cli.IntFlag{
		Name:    "crates",
		Value:   0,
		EnvVars: prefixEnvVar("CRATES"),
		Usage:   "Number of most-downloaded crates to test. 0 tests the whole dump.",
	}
	CrateList = &cli.StringFlag{
		Name:    "crate-list",
		Value:   "",
		EnvVars: prefixEnvVar("CRATE_LIST"),
		Usage:   "Path to an explicit crate list (whitespace-separated name or name==version entries)",
	}
	CrateDB = &cli.StringFlag{
		Name:    "crate-db",
		Value:   "crates.csv",
		EnvVars: prefixEnvVar("CRATE_DB"),
		Usage:   "Path to the registry dump (CSV with name,version,recent_downloads)",
	}
	Jobs = &cli.IntFlag{
		Name:    "jobs",
		Value:   1,
		EnvVars: prefixEnvVar("JOBS"),
		Usage:   "Number of execution contexts fed in parallel",
	}
	MemoryLimitGB = &cli.IntFlag{
		Name:    "memory-limit-gb",
		Value:   8,
		EnvVars: prefixEnvVar("MEMORY_LIMIT_GB"),
		Usage:   "Per-context memory limit in GiB, swap disabled",
	}
	RerunWhen = &cli.StringFlag{
		Name:    "rerun-when",
		Value:   "always",
		EnvVars: prefixEnvVar("RERUN_WHEN"),
		Usage:   "Whether to rerun packages that already have a stored log ('always' or 'never')",
	}
	TimeoutPerPhase = &cli.DurationFlag{
		Name:    "timeout-per-phase",
		Value:   10 * time.Minute,
		EnvVars: prefixEnvVar("TIMEOUT_PER_PHASE"),
		Usage:   "Wall-clock limit for each build/test phase (e.g. '10m')",
	}
	LogDir = &cli.StringFlag{
		Name:    "log-dir",
		Value:   "logs",
		EnvVars: prefixEnvVar("LOG_DIR"),
		Usage:   "Directory for per-package raw log files",
	}
	Report = &cli.StringFlag{
		Name:    "report",
		Value:   "",
		EnvVars: prefixEnvVar("REPORT"),
		Usage:   "Optional path for a JSON report of the run",
	}
	SkipImageBuild = &cli.BoolFlag{
		Name:    "skip-image-build",
		Value:   false,
		EnvVars: prefixEnvVar("SKIP_IMAGE_BUILD"),
		Usage:   "Reuse an already-built context image instead of rebuilding it",
	}

	// worker-only flags
	Workspace = &cli.StringFlag{
		Name:     "workspace",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVar("WORKSPACE"),
		Usage:    "Scratch directory the worker fetches and builds packages in",
	}
	Overrides = &cli.StringFlag{
		Name:    "overrides",
		Value:   "",
		EnvVars: prefixEnvVar("OVERRIDES"),
		Usage:   "Path to a YAML file of per-package overrides",
	}
)

// RunRequired and WorkerRequired list the flags CheckRequired enforces
// per command, on top of urfave's own Required handling.
var RunRequired = []cli.Flag{
	Tool,
}

var WorkerRequired = []cli.Flag{
	Tool,
	Workspace,
}

var runOptionalFlags = []cli.Flag{
	Crates,
	CrateList,
	CrateDB,
	Jobs,
	MemoryLimitGB,
	RerunWhen,
	TimeoutPerPhase,
	LogDir,
	Report,
	SkipImageBuild,
}

// RunFlags is the flag set for the host-side run command.
var RunFlags = append(RunRequired, runOptionalFlags...)

// WorkerFlags is the flag set for the in-context worker command.
var WorkerFlags = []cli.Flag{
	Tool,
	Workspace,
	Overrides,
}

func CheckRequired(ctx *cli.Context, required []cli.Flag) error {
	for _, f := range required {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
