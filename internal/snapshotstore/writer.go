package snapshotstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Writer persists Documents to a single path, overwriting atomically
// (spec.md §6 "Written atomically (create directory, overwrite)").
type Writer struct {
	path   string
	logger *zap.Logger
}

// NewWriter constructs a writer targeting path.
func NewWriter(path string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{path: path, logger: logger}
}

// Write serializes doc as JSON and atomically replaces the target file:
// it writes to a sibling temp file first, then renames over the target,
// so a concurrent reader never observes a partially written document.
func (w *Writer) Write(doc Document) error {
	dir := filepath.Dir(w.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("snapshotstore: creating directory %q: %w", dir, err)
		}
	}

	tmp := w.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("snapshotstore: creating temp file: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("snapshotstore: encoding document: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("snapshotstore: closing temp file: %w", err)
	}

	if err := os.Rename(tmp, w.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("snapshotstore: renaming into place: %w", err)
	}
	w.logger.Info("snapshot written", zap.String("path", w.path), zap.Int("books", len(doc.Books)))
	return nil
}
