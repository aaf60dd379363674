package runner

import (
	"fmt"
	"os"
	"path/filepath"
)

// Purge deletes everything under the workspace root, creating the root if
// it does not exist yet. It is idempotent and must run before every fetch
// so that no state from a previous package is visible to the next one.
func Purge(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("failed to create workspace root: %w", err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("failed to list workspace: %w", err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
			return fmt.Errorf("failed to purge %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// sourceDir locates the package source below the workspace root. The
// fetcher extracts a single name-version directory; if the layout is
// anything else the root itself is used.
func sourceDir(root string) string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return root
	}
	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}
	if len(dirs) == 1 {
		return filepath.Join(root, dirs[0])
	}
	return root
}
