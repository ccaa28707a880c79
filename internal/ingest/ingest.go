// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ingest places uploaded videos on local storage and creates the job
// that will carry them through a pipeline.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/ManuGH/streamstage/internal/fsutil"
	"github.com/ManuGH/streamstage/internal/job"
	"github.com/ManuGH/streamstage/internal/log"
	"github.com/ManuGH/streamstage/internal/metrics"
)

// UploadsDir is the directory below the data root holding one directory per job.
const UploadsDir = "uploads"

// DefaultFilename is used when the client supplies no usable name.
const DefaultFilename = "video.mp4"

var (
	// ErrTooLarge is returned when an upload exceeds the configured cap.
	ErrTooLarge = errors.New("upload exceeds size limit")
	// ErrEmpty is returned for uploads without content.
	ErrEmpty = errors.New("upload is empty")
)

// Ingestor writes uploads below Root/uploads/<job id>/.
type Ingestor struct {
	Root     string
	MaxBytes int64
	newID    func() string
}

// New returns an ingestor rooted at root. maxBytes <= 0 disables the cap.
func New(root string, maxBytes int64) *Ingestor {
	return &Ingestor{Root: root, MaxBytes: maxBytes, newID: uuid.NewString}
}

// Save streams r into a fresh job directory and returns the pending job.
// On any failure the job directory is removed again.
func (in *Ingestor) Save(ctx context.Context, r io.Reader, filename string) (_ *job.Job, err error) {
	id := in.newID()
	ctx = log.ContextWithJobID(ctx, id)
	logger := log.WithComponentFromContext(ctx, "ingest")

	if err := os.MkdirAll(in.Root, 0o750); err != nil {
		return nil, fmt.Errorf("create data root: %w", err)
	}
	dir, err := fsutil.ConfineRelPath(in.Root, filepath.Join(UploadsDir, id))
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	defer func() {
		if err != nil {
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				logger.Warn().Err(rmErr).Str(log.FieldPath, dir).Msg("failed to remove rejected upload")
			}
		}
	}()

	name := sanitizeFilename(filename)
	path := filepath.Join(dir, name)
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o640))
	if err != nil {
		return nil, fmt.Errorf("create pending upload: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	src := r
	if in.MaxBytes > 0 {
		src = io.LimitReader(r, in.MaxBytes+1)
	}
	n, err := io.Copy(pending, ctxReader{ctx: ctx, r: src})
	if err != nil {
		metrics.UploadsRejected.WithLabelValues("io").Inc()
		return nil, fmt.Errorf("write upload: %w", err)
	}
	if in.MaxBytes > 0 && n > in.MaxBytes {
		metrics.UploadsRejected.WithLabelValues("too_large").Inc()
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, in.MaxBytes)
	}
	if n == 0 {
		metrics.UploadsRejected.WithLabelValues("malformed").Inc()
		return nil, ErrEmpty
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return nil, fmt.Errorf("finalize upload: %w", err)
	}
	metrics.UploadBytes.Add(float64(n))

	logger.Info().
		Str(log.FieldEvent, "upload.saved").
		Str(log.FieldPath, path).
		Int64("bytes", n).
		Msg("upload stored")
	return job.New(id, dir, name), nil
}

// sanitizeFilename keeps the base name of a client-supplied filename.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	switch name {
	case "", ".", "..", "/":
		return DefaultFilename
	}
	if strings.HasPrefix(name, ".") {
		return DefaultFilename
	}
	return name
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
