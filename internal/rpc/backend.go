// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package rpc

import "errors"

// Well-known backend names.
const (
	BackendPreProcess   = "video_pre_service"
	BackendFaceDetect   = "face_detect_service"
	BackendObjectDetect = "object_detect_service"
)

var (
	// ErrTransport classifies channel, connection and mid-stream RPC failures.
	ErrTransport = errors.New("transport failure")
	// ErrUnknownBackend is returned when a backend name has no configured address.
	ErrUnknownBackend = errors.New("unknown backend")
)

// DefaultMethods maps the well-known backends to their streaming method.
var DefaultMethods = map[string]string{
	BackendPreProcess:   "/video_service.VideoPreService/ProcessVideo",
	BackendFaceDetect:   "/video_service.FaceDetectService/FaceDetection",
	BackendObjectDetect: "/video_service.ObjectDetectService/ObjectDetection",
}

// Backend is one remote detection service reachable over gRPC.
type Backend struct {
	Name    string
	Address string
	// Method is the full bidi-streaming method name. Empty selects DefaultMethods[Name].
	Method string
}

func (b Backend) method() string {
	if b.Method != "" {
		return b.Method
	}
	return DefaultMethods[b.Name]
}
