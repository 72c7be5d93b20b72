// Package storage persists ledger snapshots. The engine itself is purely
// in-memory; the executor saves a snapshot after each applied batch and
// restores the newest one on startup.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Store is the snapshot persistence interface the dispatcher's host uses.
type Store interface {
	SaveSnapshot(ctx context.Context, data []byte) (string, error)
	LatestSnapshot(ctx context.Context) ([]byte, error)
	ListSnapshots(ctx context.Context) ([]string, error)
}

// ErrNoSnapshots is returned by LatestSnapshot on an empty store.
var ErrNoSnapshots = fmt.Errorf("no snapshots in store")

const snapshotExt = ".borsh"

// FileStore keeps snapshots as timestamped files in one directory, pruning
// the oldest once more than Retain exist.
type FileStore struct {
	dir    string
	retain int
	logger *zap.Logger

	seq uint64
}

// NewFileStore opens (creating if needed) a snapshot directory. retain <= 0
// disables pruning.
func NewFileStore(dir string, retain int, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &FileStore{dir: dir, retain: retain, logger: logger}, nil
}

// SaveSnapshot writes one snapshot atomically and returns its path. The
// write goes through a temp file and a rename, so a crash never leaves a
// partial snapshot behind under the snapshot extension.
func (s *FileStore) SaveSnapshot(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.seq++
	name := fmt.Sprintf("snapshot_%s_%06d%s", time.Now().UTC().Format("20060102T150405"), s.seq, snapshotExt)
	path := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, "snapshot_*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to publish snapshot: %w", err)
	}

	s.logger.Debug("snapshot saved",
		zap.String("path", path),
		zap.Int("bytes", len(data)))

	if err := s.prune(); err != nil {
		s.logger.Warn("snapshot prune failed", zap.Error(err))
	}
	return path, nil
}

// LatestSnapshot reads the newest snapshot in the store.
func (s *FileStore) LatestSnapshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names, err := s.snapshotNames()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, ErrNoSnapshots
	}
	data, err := os.ReadFile(filepath.Join(s.dir, names[len(names)-1]))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return data, nil
}

// ListSnapshots returns the stored snapshot names, oldest first.
func (s *FileStore) ListSnapshots(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.snapshotNames()
}

func (s *FileStore) snapshotNames() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), snapshotExt) {
			names = append(names, e.Name())
		}
	}
	// Timestamped names sort chronologically.
	sort.Strings(names)
	return names, nil
}

func (s *FileStore) prune() error {
	if s.retain <= 0 {
		return nil
	}
	names, err := s.snapshotNames()
	if err != nil {
		return err
	}
	for len(names) > s.retain {
		if err := os.Remove(filepath.Join(s.dir, names[0])); err != nil {
			return err
		}
		names = names[1:]
	}
	return nil
}
