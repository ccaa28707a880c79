// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package rpc

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldData    protowire.Number = 1
	fieldIsFinal protowire.Number = 2
	fieldVideoID protowire.Number = 3
	fieldFPS     protowire.Number = 4
)

// FrameRequest is one message of the send direction.
type FrameRequest struct {
	Data    []byte
	IsFinal bool
	VideoID string
	FPS     float32
}

// FrameResponse is one message of the receive direction.
type FrameResponse struct {
	Data []byte
}

// Marshal encodes r in proto3 wire format; zero values are omitted.
func (r *FrameRequest) Marshal() []byte {
	b := make([]byte, 0, len(r.Data)+len(r.VideoID)+16)
	if len(r.Data) > 0 {
		b = protowire.AppendTag(b, fieldData, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Data)
	}
	if r.IsFinal {
		b = protowire.AppendTag(b, fieldIsFinal, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	if r.VideoID != "" {
		b = protowire.AppendTag(b, fieldVideoID, protowire.BytesType)
		b = protowire.AppendString(b, r.VideoID)
	}
	if r.FPS != 0 {
		b = protowire.AppendTag(b, fieldFPS, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(r.FPS))
	}
	return b
}

// Unmarshal decodes b into r, skipping unknown fields.
func (r *FrameRequest) Unmarshal(b []byte) error {
	*r = FrameRequest{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			r.Data = append([]byte(nil), v...)
			return n, nil
		case num == fieldIsFinal && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			r.IsFinal = protowire.DecodeBool(v)
			return n, nil
		case num == fieldVideoID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.VideoID = v
			return n, nil
		case num == fieldFPS && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			r.FPS = math.Float32frombits(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

// Marshal encodes r in proto3 wire format.
func (r *FrameResponse) Marshal() []byte {
	if len(r.Data) == 0 {
		return nil
	}
	b := make([]byte, 0, len(r.Data)+8)
	b = protowire.AppendTag(b, fieldData, protowire.BytesType)
	return protowire.AppendBytes(b, r.Data)
}

// Unmarshal decodes b into r, skipping unknown fields.
func (r *FrameResponse) Unmarshal(b []byte) error {
	*r = FrameResponse{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == fieldData && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			r.Data = append([]byte(nil), v...)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

// walkFields iterates the top-level fields of b. fn consumes the field value
// and returns its length, or a negative protowire error code.
func walkFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("decode tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return fmt.Errorf("decode field %d: %w", num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}
