package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalSink writes artifacts below a directory of the local filesystem.
type LocalSink struct {
	Root string
}

// Write creates the parent directories of name and writes data to it.
func (s *LocalSink) Write(_ context.Context, name string, data []byte) error {
	target := s.path(name)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", target, err)
	}
	//nolint:gosec // G306: exported models are meant to be readable.
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return nil
}

// Scheme implements Sink.
func (s *LocalSink) Scheme() string { return "file" }

// Location implements Sink.
func (s *LocalSink) Location(name string) string { return s.path(name) }

func (s *LocalSink) path(name string) string {
	return filepath.Join(s.Root, filepath.FromSlash(name))
}
