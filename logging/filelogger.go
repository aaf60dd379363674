// Package logging persists raw per-package output so failures can be
// inspected long after the run, and so reruns can skip packages that
// already have a recorded outcome.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/acarl005/stripansi"
)

// FileLogger writes each package's raw output block to
// <baseDir>/<name>/<version>. Output is ANSI-scrubbed: cargo's colored
// diagnostics are useless noise in stored logs.
type FileLogger struct {
	baseDir string
	mu      sync.Mutex
}

// NewFileLogger creates the base directory if needed.
func NewFileLogger(baseDir string) (*FileLogger, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("log dir is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	return &FileLogger{baseDir: baseDir}, nil
}

// Write stores one package's raw block, replacing any previous log for
// the same name/version.
func (l *FileLogger) Write(name, version string, raw []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	dir := filepath.Join(l.baseDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log dir for %s: %w", name, err)
	}
	clean := stripansi.Strip(string(raw))
	path := filepath.Join(dir, versionFilename(version))
	if err := os.WriteFile(path, []byte(clean), 0o644); err != nil {
		return fmt.Errorf("failed to write log for %s: %w", name, err)
	}
	return nil
}

// Has reports whether a log already exists for the package, which is how
// rerun-when=never decides to skip work.
func (l *FileLogger) Has(name, version string) bool {
	_, err := os.Stat(filepath.Join(l.baseDir, name, versionFilename(version)))
	return err == nil
}

// Path returns where a package's log lives.
func (l *FileLogger) Path(name, version string) string {
	return filepath.Join(l.baseDir, name, versionFilename(version))
}

func versionFilename(version string) string {
	if version == "" {
		return "unversioned"
	}
	return version
}
