package types

import (
	"fmt"
	"strings"
	"time"
)

// The worker's stdout is a plain text stream: raw toolchain output
// interleaved with marker lines the aggregator scans for. Markers are the
// only structure the wire contract guarantees; everything else is opaque
// log content.
const (
	// MarkerPrefix starts every structured line the worker emits.
	MarkerPrefix = ">>> miri-tools "

	markerKindPackage  = "package"
	markerKindPhase    = "phase"
	markerKindLockfile = "lockfile"

	// EnvTestEndDelimiter names the environment variable that carries the
	// per-run block delimiter into the worker.
	EnvTestEndDelimiter = "TEST_END_DELIMITER"
)

// DelimiterLine frames a delimiter the way workers emit it: a single
// leading and trailing dash around the run's unique token.
func DelimiterLine(delimiter string) string {
	return fmt.Sprintf("-%s-", delimiter)
}

// IsDelimiterLine reports whether a stream line terminates a block.
func IsDelimiterLine(line, delimiter string) bool {
	return strings.TrimSpace(line) == DelimiterLine(delimiter)
}

// MarkerKind discriminates the structured line types.
type MarkerKind string

const (
	MarkerPackage       MarkerKind = MarkerKind(markerKindPackage)
	MarkerPhase         MarkerKind = MarkerKind(markerKindPhase)
	MarkerLockfileBegin MarkerKind = "lockfile-begin"
	MarkerLockfileEnd   MarkerKind = "lockfile-end"
)

// Marker is one parsed structured line.
type Marker struct {
	Kind     MarkerKind
	Name     string
	Version  string
	Variant  ToolVariant
	Phase    Phase
	Outcome  Outcome
	Duration time.Duration
}

// PackageMarker renders the block header announcing which package the
// following output belongs to.
func PackageMarker(name, version string, variant ToolVariant) string {
	return fmt.Sprintf("%s%s name=%s version=%s variant=%s", MarkerPrefix, markerKindPackage, name, version, variant)
}

// PhaseMarker renders one phase outcome. The reason, when present, is the
// final field and may contain spaces.
func PhaseMarker(phase Phase, res PhaseResult) string {
	line := fmt.Sprintf("%s%s name=%s outcome=%s dur=%s",
		MarkerPrefix, markerKindPhase, phase, res.Outcome.Kind, res.Duration.Round(time.Millisecond))
	if res.Outcome.Reason != "" {
		line += " reason=" + sanitizeReason(res.Outcome.Reason)
	}
	return line
}

// LockfileMarker renders the begin/end fences around the verbatim
// dependency snapshot.
func LockfileMarker(begin bool) string {
	if begin {
		return MarkerPrefix + markerKindLockfile + " begin"
	}
	return MarkerPrefix + markerKindLockfile + " end"
}

// sanitizeReason keeps reasons single-line so they cannot break framing.
func sanitizeReason(reason string) string {
	reason = strings.ReplaceAll(reason, "\n", " ")
	reason = strings.ReplaceAll(reason, "\r", " ")
	return strings.TrimSpace(reason)
}

// ParseMarker parses a stream line. It returns ok=false for anything that
// is not a well-formed marker, including ordinary log output that merely
// resembles one; the aggregator must never crash on log content.
func ParseMarker(line string) (Marker, bool) {
	rest, found := strings.CutPrefix(strings.TrimRight(line, "\r\n"), MarkerPrefix)
	if !found {
		return Marker{}, false
	}
	kind, rest, _ := strings.Cut(rest, " ")
	switch kind {
	case markerKindPackage:
		return parsePackageMarker(rest)
	case markerKindPhase:
		return parsePhaseMarker(rest)
	case markerKindLockfile:
		switch strings.TrimSpace(rest) {
		case "begin":
			return Marker{Kind: MarkerLockfileBegin}, true
		case "end":
			return Marker{Kind: MarkerLockfileEnd}, true
		}
	}
	return Marker{}, false
}

func parsePackageMarker(rest string) (Marker, bool) {
	fields := parseFields(rest)
	m := Marker{
		Kind:    MarkerPackage,
		Name:    fields["name"],
		Version: fields["version"],
		Variant: ToolVariant(fields["variant"]),
	}
	if m.Name == "" {
		return Marker{}, false
	}
	return m, true
}

func parsePhaseMarker(rest string) (Marker, bool) {
	// The reason field is last and may contain spaces; split it off before
	// tokenizing the rest.
	reason := ""
	if i := strings.Index(rest, " reason="); i >= 0 {
		reason = rest[i+len(" reason="):]
		rest = rest[:i]
	}
	fields := parseFields(rest)
	phase, ok := ParsePhase(fields["name"])
	if !ok {
		return Marker{}, false
	}
	kind := OutcomeKind(fields["outcome"])
	switch kind {
	case OutcomeSuccess, OutcomeFailure, OutcomeTimeout, OutcomeSkipped:
	default:
		return Marker{}, false
	}
	dur, _ := time.ParseDuration(fields["dur"])
	return Marker{
		Kind:     MarkerPhase,
		Phase:    phase,
		Outcome:  Outcome{Kind: kind, Reason: reason},
		Duration: dur,
	}, true
}

func parseFields(s string) map[string]string {
	fields := make(map[string]string)
	for _, tok := range strings.Fields(s) {
		if k, v, ok := strings.Cut(tok, "="); ok {
			fields[k] = v
		}
	}
	return fields
}
