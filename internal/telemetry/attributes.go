// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	JobIDKey      = "job.id"
	JobStatusKey  = "job.status"
	PipelineKey   = "pipeline.name"
	StageIndexKey = "stage.index"
	BackendKey    = "stage.backend"
	TargetKey     = "stage.target"
	FPSKey        = "media.fps"
	FramesKey     = "rpc.frames_sent"
	ChunksKey     = "rpc.chunks_received"
)

// StageAttributes creates span attributes for a single pipeline stage.
func StageAttributes(jobID string, index int, backend, target string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int(StageIndexKey, index),
		attribute.String(BackendKey, backend),
	}
	if jobID != "" {
		attrs = append(attrs, attribute.String(JobIDKey, jobID))
	}
	if target != "" {
		attrs = append(attrs, attribute.String(TargetKey, target))
	}
	return attrs
}

// ExchangeAttributes creates span attributes summarising one duplex exchange.
func ExchangeAttributes(frames, chunks int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(FramesKey, frames),
		attribute.Int(ChunksKey, chunks),
	}
}
