package types

import (
	"fmt"
	"strings"
	"time"
)

// CorpusEntry is one ranked package selected for a regression run.
// Entries are immutable once selected and are consumed in rank order.
type CorpusEntry struct {
	Name      string
	Version   string
	Downloads uint64
	Rank      int
}

// Spec renders the entry in the name==version form fed to workers.
func (e CorpusEntry) Spec() string {
	return fmt.Sprintf("%s==%s", e.Name, e.Version)
}

// ParsePackageSpec splits a name==version worker input line. The version
// part is optional.
func ParsePackageSpec(line string) (name, version string, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", "", fmt.Errorf("empty package spec")
	}
	name, version, _ = strings.Cut(line, "==")
	if name == "" {
		return "", "", fmt.Errorf("package spec %q has no name", line)
	}
	return name, version, nil
}

// JobSpec describes one corpus run: which instrumented toolchain to use,
// which packages to process, and the wall-clock budget per phase. It is
// created once per invocation and immutable for its lifetime.
type JobSpec struct {
	Variant         ToolVariant
	Corpus          []CorpusEntry
	TimeoutPerPhase time.Duration
}

// PackageOverride carries build/test adjustments accumulated from known
// incompatibilities. The zero value means "no override".
type PackageOverride struct {
	Name      string   `yaml:"name"`
	ExtraArgs []string `yaml:"extra_args,omitempty"`
	Skip      bool     `yaml:"skip,omitempty"`
}

// RunRecord is the recorded outcome of all phases for one package under
// one variant. Exactly one exists per corpus entry per invocation, no
// matter how the package fails; it is immutable once emitted.
type RunRecord struct {
	Package            string
	Version            string
	Variant            ToolVariant
	Phases             map[Phase]PhaseResult
	RawLog             []byte
	DependencySnapshot string
}

// Result returns the recorded outcome for a phase, OutcomeUnknown when
// the phase never reported.
func (r *RunRecord) Result(p Phase) PhaseResult {
	if r.Phases == nil {
		return PhaseResult{}
	}
	return r.Phases[p]
}

// Passed reports whether every phase either succeeded or was skipped.
func (r *RunRecord) Passed() bool {
	for _, p := range OrderedPhases {
		switch r.Result(p).Outcome.Kind {
		case OutcomeSuccess, OutcomeSkipped:
		default:
			return false
		}
	}
	return true
}

// ReportStats aggregates record counts for one run.
type ReportStats struct {
	Total    int
	Passed   int
	Failed   int
	Timeouts int
	Skipped  int
}

// Report is the aggregate of all RunRecords for one JobSpec. Records
// appear in the same order as the input corpus. Read-only once built.
type Report struct {
	Variant     ToolVariant
	GeneratedAt time.Time
	Records     []*RunRecord
}

// Stats computes aggregate counts over the report's records. A record
// counts as a timeout if any phase timed out, as skipped if every phase
// was skipped, and as failed otherwise when not passed.
func (rep *Report) Stats() ReportStats {
	s := ReportStats{Total: len(rep.Records)}
	for _, rec := range rep.Records {
		switch {
		case rec.allSkipped():
			s.Skipped++
		case rec.anyTimeout():
			s.Timeouts++
		case rec.Passed():
			s.Passed++
		default:
			s.Failed++
		}
	}
	return s
}

func (r *RunRecord) allSkipped() bool {
	for _, p := range OrderedPhases {
		if !r.Result(p).Outcome.Is(OutcomeSkipped) {
			return false
		}
	}
	return true
}

func (r *RunRecord) anyTimeout() bool {
	for _, p := range OrderedPhases {
		if r.Result(p).Outcome.Is(OutcomeTimeout) {
			return true
		}
	}
	return false
}
