// Package aggregator turns the raw, delimiter-framed worker output stream
// back into structured results. The textual delimiter is the wire
// contract with the worker; inside this package each block becomes a
// typed RunRecord immediately and the delimiter never leaks further.
package aggregator

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/thomcc/miri-tools/types"
)

// UnknownPackage labels records recovered from blocks whose package
// header was lost (e.g. the worker was killed before writing it).
const UnknownPackage = "(unknown)"

// scanner buffer: a single compile error dump can run to megabytes.
const maxLineBytes = 4 * 1024 * 1024

// Parse splits the stream strictly on the delimiter and classifies each
// block. It is idempotent (same stream, same report) and tolerant of a
// truncated trailing block, which is classified as incomplete rather than
// discarded. Only I/O errors from r are returned; malformed content is
// never fatal.
func Parse(r io.Reader, delimiter string) (*types.Report, error) {
	if delimiter == "" {
		return nil, fmt.Errorf("delimiter must not be empty")
	}

	rep := &types.Report{GeneratedAt: time.Now()}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	b := newBlockState()
	for scanner.Scan() {
		line := scanner.Text()
		if types.IsDelimiterLine(line, delimiter) {
			if rec := b.finish(); rec != nil {
				rep.Records = append(rep.Records, rec)
			}
			b = newBlockState()
			continue
		}
		b.consume(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read result stream: %w", err)
	}

	// A trailing block without its delimiter means the worker (or the
	// whole run) was killed mid-package. Record it as incomplete; the
	// pipeline must never silently drop a package.
	if rec := b.finish(); rec != nil {
		rep.Records = append(rep.Records, rec)
	}

	for _, rec := range rep.Records {
		if rep.Variant == "" && rec.Variant != "" {
			rep.Variant = rec.Variant
		}
	}
	return rep, nil
}

// ParseBlock classifies a single already-framed block (no delimiter
// line). A block with no content yields nil.
func ParseBlock(block []byte) *types.RunRecord {
	b := newBlockState()
	scanner := bufio.NewScanner(bytes.NewReader(block))
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		b.consume(scanner.Text())
	}
	return b.finish()
}

// blockState assembles one delimited block into a RunRecord.
type blockState struct {
	raw        strings.Builder
	rec        *types.RunRecord
	inLockfile bool
	lockfile   strings.Builder
	sawContent bool
}

func newBlockState() *blockState {
	return &blockState{}
}

func (b *blockState) consume(line string) {
	if strings.TrimSpace(line) != "" {
		b.sawContent = true
	}
	b.raw.WriteString(line)
	b.raw.WriteByte('\n')

	m, ok := types.ParseMarker(line)
	if !ok {
		if b.inLockfile {
			b.lockfile.WriteString(line)
			b.lockfile.WriteByte('\n')
		}
		return
	}

	switch m.Kind {
	case types.MarkerPackage:
		if b.rec == nil {
			b.rec = &types.RunRecord{
				Package: m.Name,
				Version: m.Version,
				Variant: m.Variant,
				Phases:  make(map[types.Phase]types.PhaseResult),
			}
		}
	case types.MarkerPhase:
		b.record().Phases[m.Phase] = types.PhaseResult{Outcome: m.Outcome, Duration: m.Duration}
	case types.MarkerLockfileBegin:
		b.inLockfile = true
		b.lockfile.Reset()
	case types.MarkerLockfileEnd:
		b.inLockfile = false
		if b.rec != nil {
			b.rec.DependencySnapshot = b.lockfile.String()
		}
	}
}

// record returns the block's record, synthesizing a headerless one if a
// phase marker arrives before (or without) a package marker.
func (b *blockState) record() *types.RunRecord {
	if b.rec == nil {
		b.rec = &types.RunRecord{
			Package: UnknownPackage,
			Phases:  make(map[types.Phase]types.PhaseResult),
		}
	}
	return b.rec
}

// finish closes the block. Empty blocks (stray delimiters, trailing
// newlines) yield nil.
func (b *blockState) finish() *types.RunRecord {
	if b.rec == nil && !b.sawContent {
		return nil
	}
	rec := b.record()
	rec.RawLog = []byte(b.raw.String())
	// Any phase without a marker has no success marker: it failed in a
	// way the worker could not report.
	for _, p := range types.OrderedPhases {
		if !rec.Phases[p].Outcome.Known() {
			rec.Phases[p] = types.PhaseResult{Outcome: types.Incomplete()}
		}
	}
	return rec
}

// Reconcile enforces the one-record-per-package invariant against the
// corpus that was actually fed in: records are reordered to corpus order,
// entries that produced no block at all are synthesized as incomplete,
// and duplicate or unattributable records are dropped.
func Reconcile(rep *types.Report, variant types.ToolVariant, corpus []types.CorpusEntry) *types.Report {
	unclaimed := make(map[string][]*types.RunRecord)
	for _, rec := range rep.Records {
		unclaimed[rec.Package] = append(unclaimed[rec.Package], rec)
	}

	out := &types.Report{Variant: variant, GeneratedAt: rep.GeneratedAt}
	for _, entry := range corpus {
		if recs := unclaimed[entry.Name]; len(recs) > 0 {
			out.Records = append(out.Records, recs[0])
			unclaimed[entry.Name] = recs[1:]
			continue
		}
		phases := make(map[types.Phase]types.PhaseResult, len(types.OrderedPhases))
		for _, p := range types.OrderedPhases {
			phases[p] = types.PhaseResult{Outcome: types.Incomplete()}
		}
		out.Records = append(out.Records, &types.RunRecord{
			Package: entry.Name,
			Version: entry.Version,
			Variant: variant,
			Phases:  phases,
		})
	}
	return out
}
