package mtw

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/thomcc/miri-tools/types"
)

// RerunWhen controls whether packages that already have a stored log are
// run again.
type RerunWhen string

const (
	RerunAlways RerunWhen = "always"
	RerunNever  RerunWhen = "never"
)

// ParseRerunWhen converts the CLI value.
func ParseRerunWhen(s string) (RerunWhen, error) {
	switch RerunWhen(s) {
	case RerunAlways, RerunNever:
		return RerunWhen(s), nil
	default:
		return "", fmt.Errorf("invalid rerun-when option %q", s)
	}
}

// Config is the host-side configuration for one corpus run.
type Config struct {
	Variant         types.ToolVariant
	Crates          int    // corpus size; 0 means the whole universe
	CrateList       string // optional explicit crate list file
	DumpPath        string // local registry dump
	Jobs            int
	MemoryLimitGB   int
	RerunWhen       RerunWhen
	TimeoutPerPhase time.Duration
	LogDir          string
	ReportFile      string // optional JSON report output
	SkipImageBuild  bool   // reuse an already-built context image
	Log             *zap.SugaredLogger
}

// Validate checks the parts that cannot have sane defaults.
func (c *Config) Validate() error {
	if c.Variant == "" {
		return errors.New("tool variant is required")
	}
	if c.DumpPath == "" {
		return errors.New("registry dump path is required")
	}
	if c.Crates < 0 {
		return errors.New("crate count must not be negative")
	}
	if c.Log == nil {
		return errors.New("logger is required")
	}
	return nil
}
