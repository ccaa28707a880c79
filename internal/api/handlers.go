// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/streamstage/internal/job"
	"github.com/ManuGH/streamstage/internal/log"
)

// UploadField is the multipart form field carrying the video.
const UploadField = "video"

// ResponseFilename is the attachment name of every returned artifact.
const ResponseFilename = "video.mp4"

// multipartOverhead leaves room for boundaries and part headers on top of
// the upload cap.
const multipartOverhead = 64 << 10

var errMissingUpload = errors.New("multipart field \"" + UploadField + "\" is missing")

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.cfg.Version,
		"pipelines": s.runner.Pipelines(),
	})
}

func (s *Server) handleRunNamed(w http.ResponseWriter, r *http.Request) {
	s.handleRun(chi.URLParam(r, "name"))(w, r)
}

// handleRun ingests the upload, runs the pipeline and streams the artifact.
func (s *Server) handleRun(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := log.WithContext(ctx, s.logger)

		j, err := s.receiveUpload(w, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx = log.ContextWithJobID(ctx, j.ID)
		w.Header().Set("X-Job-ID", j.ID)

		path, err := s.runner.Run(ctx, name, j)
		if err != nil {
			logger.Warn().Err(err).
				Str(log.FieldEvent, "pipeline.request_failed").
				Str(log.FieldJobID, j.ID).
				Str(log.FieldPipeline, name).
				Msg("pipeline run failed")
			writeError(w, r, err)
			return
		}
		serveArtifact(w, r, path)
	}
}

// receiveUpload streams the first UploadField part into a new job. Other
// parts are skipped.
func (s *Server) receiveUpload(w http.ResponseWriter, r *http.Request) (*job.Job, error) {
	if s.ingest.MaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.ingest.MaxBytes+multipartOverhead)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, badRequest(err)
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, badRequest(errMissingUpload)
		}
		if err != nil {
			return nil, badRequest(err)
		}
		if part.FormName() != UploadField {
			_ = part.Close()
			continue
		}
		return s.saveUpload(r, part)
	}
}

func (s *Server) saveUpload(r *http.Request, part *multipart.Part) (*job.Job, error) {
	defer func() { _ = part.Close() }()
	return s.ingest.Save(r.Context(), part, part.FileName())
}

func serveArtifact(w http.ResponseWriter, r *http.Request, path string) {
	// #nosec G304 -- path is produced by the artifact store under the data root
	f, err := os.Open(path)
	if err != nil {
		writeError(w, r, fmt.Errorf("open artifact: %w", err))
		return
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		writeError(w, r, fmt.Errorf("stat artifact: %w", err))
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ResponseFilename))
	http.ServeContent(w, r, ResponseFilename, info.ModTime(), f)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	recs, err := s.runner.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []job.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	rec, err := s.runner.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
