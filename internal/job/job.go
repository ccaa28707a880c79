// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package job holds the per-request video job record and its persistence.
//
// A Job is owned by exactly one pipeline run at a time. The owner takes an
// exclusive claim before mutating it; everything else only reads snapshots.
package job

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInStage   Status = "in-stage"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	// ErrBusy is returned when a second owner tries to claim a job.
	ErrBusy = errors.New("job is claimed by another run")
	// ErrInvalidTransition rejects status changes the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrNotFound is returned by stores for unknown ids.
	ErrNotFound = errors.New("job not found")
)

// Job is one processing request.
//
// Dir is the current location: the directory holding the file the next stage
// reads. Output is replaced by every stage and appended to only by the
// receive side of the active exchange.
type Job struct {
	ID       string
	Pipeline string
	Dir      string
	Filename string
	FPS      float64
	Output   [][]byte
	Status   Status
	Stage    int
	Err      string

	CreatedAt time.Time
	UpdatedAt time.Time

	claimed atomic.Bool
}

// New returns a pending job for a file already in dir.
func New(id, dir, filename string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        id,
		Dir:       dir,
		Filename:  filename,
		Status:    StatusPending,
		Stage:     -1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Path is the file the next stage reads.
func (j *Job) Path() string {
	return filepath.Join(j.Dir, j.Filename)
}

// Claim takes exclusive mutation rights.
func (j *Job) Claim() error {
	if !j.claimed.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s", ErrBusy, j.ID)
	}
	return nil
}

// Release gives up mutation rights taken by Claim.
func (j *Job) Release() {
	j.claimed.Store(false)
}

// ResetOutput drops the previous stage's buffer.
func (j *Job) ResetOutput() {
	j.Output = nil
}

// Append adds one response chunk in arrival order.
func (j *Job) Append(chunk []byte) {
	j.Output = append(j.Output, chunk)
}

// EnterStage moves the job into stage i. Stages only ever advance.
func (j *Job) EnterStage(i int) error {
	switch {
	case j.Status.Terminal():
		return fmt.Errorf("%w: %s -> %s(%d)", ErrInvalidTransition, j.Status, StatusInStage, i)
	case j.Status == StatusInStage && i <= j.Stage:
		return fmt.Errorf("%w: stage %d after stage %d", ErrInvalidTransition, i, j.Stage)
	}
	j.Status = StatusInStage
	j.Stage = i
	j.touch()
	return nil
}

// Complete marks the job done.
func (j *Job) Complete() error {
	if j.Status != StatusInStage {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusCompleted)
	}
	j.Status = StatusCompleted
	j.touch()
	return nil
}

// Fail marks the job failed with cause. A pending job may fail directly when
// it could not be admitted at all.
func (j *Job) Fail(cause error) error {
	if j.Status.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusFailed)
	}
	j.Status = StatusFailed
	if cause != nil {
		j.Err = cause.Error()
	}
	j.touch()
	return nil
}

func (j *Job) touch() { j.UpdatedAt = time.Now().UTC() }

// Record is the persisted view of a job. Chunk payloads are not stored; the
// artifact on disk is the durable form of the output.
type Record struct {
	ID        string    `json:"id"`
	Pipeline  string    `json:"pipeline,omitempty"`
	Dir       string    `json:"dir"`
	Filename  string    `json:"filename"`
	FPS       float64   `json:"fps"`
	Status    Status    `json:"status"`
	Stage     int       `json:"stage"`
	Chunks    int       `json:"chunks"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot copies the persistable fields.
func (j *Job) Snapshot() Record {
	return Record{
		ID:        j.ID,
		Pipeline:  j.Pipeline,
		Dir:       j.Dir,
		Filename:  j.Filename,
		FPS:       j.FPS,
		Status:    j.Status,
		Stage:     j.Stage,
		Chunks:    len(j.Output),
		Error:     j.Err,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}
