// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package rpc

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// Codec encodes FrameRequest and FrameResponse. It reports itself as "proto"
// so backends see the standard application/grpc+proto content type.
type Codec struct{}

var _ encoding.Codec = Codec{}

func (Codec) Name() string { return "proto" }

func (Codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case *FrameRequest:
		return m.Marshal(), nil
	case *FrameResponse:
		return m.Marshal(), nil
	default:
		return nil, fmt.Errorf("rpc codec: cannot marshal %T", v)
	}
}

func (Codec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case *FrameRequest:
		return m.Unmarshal(data)
	case *FrameResponse:
		return m.Unmarshal(data)
	default:
		return fmt.Errorf("rpc codec: cannot unmarshal into %T", v)
	}
}
