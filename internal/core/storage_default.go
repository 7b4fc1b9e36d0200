package core

import (
	"os"
	"path/filepath"
)

// defaultDirectory resolves the blob backend's root when Config.Directory
// is unset: the CHECKPOINTS_DIR environment override if present, else a
// "checkpoints" subdirectory of the OS cache directory (spec.md §6
// "Environment variables").
func defaultDirectory() string {
	if dir := os.Getenv("CHECKPOINTS_DIR"); dir != "" {
		return dir
	}
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "checkpoints")
}
