// Package exitcodes defines the standard exit codes used by miri-tools.
package exitcodes

// Exit code constants used by miri-tools.
//
// Per-package build and test failures are part of the report and never
// change the exit code; only harness-level faults do.
//
// * Success (0): the run completed and the report was produced
// * RuntimeErr (2): image build failures, context acquisition failures,
//   panics, or other harness faults
const (
	Success    = 0
	RuntimeErr = 2
)
