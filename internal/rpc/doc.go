// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package rpc talks to the detection backends over one bidirectional gRPC
// stream per stage.
//
// The wire messages are encoded with the protobuf wire format by hand so that
// the module does not depend on generated code:
//
//	FrameRequest  { bytes data = 1; bool is_final = 2; string video_id = 3; float fps = 4; }
//	FrameResponse { bytes data = 1; }
//
// Connections are pooled per backend name (ConnPool) and handed out as leases.
// DuplexClient drives the send and receive directions of one call concurrently.
package rpc
