// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/streamstage/internal/media"
	"github.com/ManuGH/streamstage/internal/rpc"
)

var (
	// ErrSourceUnavailable: the stage input is missing, unreadable or corrupt.
	ErrSourceUnavailable = media.ErrSourceUnavailable
	// ErrTransportFailure: channel, connection or mid-stream RPC error.
	ErrTransportFailure = rpc.ErrTransport
	// ErrPersistenceFailure: the stage artifact could not be written.
	ErrPersistenceFailure = errors.New("persistence failure")
	// ErrStageFailed matches every *StageError.
	ErrStageFailed = errors.New("stage failed")
	// ErrUnknownPipeline is returned for pipeline names the service does not know.
	ErrUnknownPipeline = errors.New("unknown pipeline")
)

// StageError scopes a failure to one stage of a chain. It matches
// ErrStageFailed and unwraps to the underlying kind.
type StageError struct {
	Stage   int
	Backend string
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s) failed: %v", e.Stage, e.Backend, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) Is(target error) bool { return target == ErrStageFailed }

// Kind names the failure class of err for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, ErrTransportFailure):
		return "transport"
	case errors.Is(err, ErrPersistenceFailure):
		return "persistence"
	default:
		return "other"
	}
}
