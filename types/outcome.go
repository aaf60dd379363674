package types

import "time"

// Phase identifies one discrete step of processing a single package.
type Phase string

const (
	PhaseDownload Phase = "download"
	PhaseLock     Phase = "lock"
	PhaseBuild    Phase = "build"
	PhaseUnitTest Phase = "unitTest"
	PhaseDocTest  Phase = "docTest"
)

// OrderedPhases lists the phases in execution order. Reports and markers
// always present phases in this order.
var OrderedPhases = []Phase{PhaseDownload, PhaseLock, PhaseBuild, PhaseUnitTest, PhaseDocTest}

// ParsePhase validates a phase name read back from a marker line.
func ParsePhase(s string) (Phase, bool) {
	for _, p := range OrderedPhases {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// OutcomeKind is the classification of a single phase.
type OutcomeKind string

const (
	// OutcomeUnknown is the zero value; it appears only while a block is
	// being assembled and never in a finished report.
	OutcomeUnknown OutcomeKind = ""
	OutcomeSuccess OutcomeKind = "success"
	OutcomeFailure OutcomeKind = "failure"
	OutcomeTimeout OutcomeKind = "timeout"
	OutcomeSkipped OutcomeKind = "skipped"
)

// Well-known failure reasons.
const (
	ReasonDownload   = "download"
	ReasonLock       = "lock"
	ReasonBuild      = "build"
	ReasonTest       = "test"
	ReasonWorkspace  = "workspace"
	ReasonIncomplete = "incomplete"
)

// Outcome is the tagged result of one phase: Success, Failure(reason),
// Timeout or Skipped.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

func Success() Outcome                { return Outcome{Kind: OutcomeSuccess} }
func Failure(reason string) Outcome   { return Outcome{Kind: OutcomeFailure, Reason: reason} }
func Timeout() Outcome                { return Outcome{Kind: OutcomeTimeout} }
func Skipped() Outcome                { return Outcome{Kind: OutcomeSkipped} }
func Incomplete() Outcome             { return Failure(ReasonIncomplete) }
func (o Outcome) OK() bool            { return o.Kind == OutcomeSuccess }
func (o Outcome) Known() bool         { return o.Kind != OutcomeUnknown }
func (o Outcome) Is(k OutcomeKind) bool { return o.Kind == k }

func (o Outcome) String() string {
	if o.Reason == "" {
		return string(o.Kind)
	}
	return string(o.Kind) + "(" + o.Reason + ")"
}

// PhaseResult pairs an outcome with the wall-clock time the phase took.
type PhaseResult struct {
	Outcome  Outcome
	Duration time.Duration
}
