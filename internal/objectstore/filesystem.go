// Package objectstore provides a filesystem-backed store.ObjectStore.
// No object-storage SDK is available (see DESIGN.md for why this is a
// justified standard-library exception): local disk stands in for
// whatever bucket the deployment environment provides, behind the same
// Put contract a real SDK-backed implementation would satisfy.
package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Filesystem writes artifacts under a root directory, creating parent
// directories as needed.
type Filesystem struct {
	root string
}

func NewFilesystem(root string) *Filesystem {
	return &Filesystem{root: root}
}

func (f *Filesystem) Put(_ context.Context, path string, data []byte, _ string) error {
	full := filepath.Join(f.root, filepath.Clean("/"+path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("objectstore: mkdir: %w", err)
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("objectstore: write: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		return fmt.Errorf("objectstore: rename: %w", err)
	}
	return nil
}
