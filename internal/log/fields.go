// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"
	FieldTraceID   = "trace_id"
	FieldSpanID    = "span_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPipeline  = "pipeline"
	FieldStage     = "stage"
	FieldBackend   = "backend"
	FieldMethod    = "method"

	// Media / stream fields
	FieldFPS       = "fps"
	FieldNativeFPS = "native_fps"
	FieldFrames    = "frames"
	FieldChunks    = "chunks"

	// Path fields
	FieldPath     = "path"
	FieldLocation = "location"
	FieldTarget   = "target"
)
