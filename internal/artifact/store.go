// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package artifact persists stage output under a data root.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/streamstage/internal/fsutil"
	"github.com/ManuGH/streamstage/internal/log"
)

// Store durably writes one artifact and returns the directory it landed in.
// That directory is the job's next location. Artifacts of different jobs never
// share a directory, even when their filenames match.
type Store interface {
	Save(ctx context.Context, target, jobID, filename string, chunks [][]byte) (string, error)
}

// FileStore writes artifacts as plain files below Root, one directory per job
// under each target. The target label is a path relative to Root, e.g.
// "video_data/face_detection".
type FileStore struct {
	Root string
}

// NewFileStore returns a store rooted at root.
func NewFileStore(root string) *FileStore {
	return &FileStore{Root: root}
}

// Save concatenates chunks in order into target/jobID/filename. The file
// appears atomically: readers see either the previous artifact or the complete
// new one. A cancelled ctx writes nothing.
func (s *FileStore) Save(ctx context.Context, target, jobID, filename string, chunks [][]byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !isPathElem(filename) {
		return "", fmt.Errorf("invalid artifact filename %q", filename)
	}
	if !isPathElem(jobID) {
		return "", fmt.Errorf("invalid job id %q", jobID)
	}
	dir, err := fsutil.ConfineRelPath(s.Root, filepath.Join(target, jobID))
	if err != nil {
		return "", fmt.Errorf("resolve artifact location %q: %w", target, err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	path := filepath.Join(dir, filename)
	logger := log.WithComponentFromContext(ctx, "artifact")

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o640))
	if err != nil {
		return "", fmt.Errorf("create pending artifact: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Str(log.FieldPath, path).Msg("cleanup pending artifact")
		}
	}()

	var size int
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if _, err := pending.Write(c); err != nil {
			return "", fmt.Errorf("write chunk %d: %w", i, err)
		}
		size += len(c)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("atomically replace artifact: %w", err)
	}

	logger.Debug().
		Str(log.FieldEvent, "artifact.saved").
		Str(log.FieldPath, path).
		Int(log.FieldChunks, len(chunks)).
		Int("bytes", size).
		Msg("artifact persisted")
	return dir, nil
}

func isPathElem(name string) bool {
	return name != "" && name != "." && name != ".." && name == filepath.Base(name)
}
