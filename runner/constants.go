package runner

import "time"

const (
	// DefaultPhaseTimeout bounds each blocking phase (fetch, lock, build,
	// each test phase) when no explicit budget is configured.
	DefaultPhaseTimeout = 10 * time.Minute

	// DefaultCargoBinary is the toolchain entrypoint inside the execution
	// context.
	DefaultCargoBinary = "cargo"

	// Cargo subcommands and flags.
	MiriSubcommand   = "miri"
	TestCommand      = "test"
	UpdateCommand    = "update"
	DownloadCommand  = "download"
	NoRunFlag        = "--no-run"
	DocFlag          = "--doc"
	JobsFlag         = "--jobs"
	ExtractFlag      = "-x"
	OutputFlag       = "-o"
	TestArgSeparator = "--"

	// SingleJob forces build/test concurrency to one so instrumented
	// failures stay attributable to a single test at a time.
	SingleJob         = "1"
	SingleThreadedArg = "--test-threads=1"

	// LockfileName is the dependency snapshot recorded per package.
	LockfileName = "Cargo.lock"

	// killGracePeriod is how long Wait lingers for output after the
	// process group has been killed on timeout.
	killGracePeriod = 10 * time.Second
)
