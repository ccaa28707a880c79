// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package media

import (
	"context"
	"errors"
	"image"
	"math"
)

const (
	// MaxFPS caps the frame rate announced to backends.
	MaxFPS = 30.0
	// DefaultFPS replaces rates that are non-positive or implausible.
	DefaultFPS = 30.0
	// implausibleFPS is the rate above which container metadata is treated as corrupt.
	implausibleFPS = 100.0
)

// ErrSourceUnavailable reports a video file that is missing, unreadable or
// cannot be decoded.
var ErrSourceUnavailable = errors.New("source unavailable")

// Frame is one message of the send direction. Data frames carry a JPEG payload;
// the terminal frame carries no data and the negotiated frame rate.
type Frame struct {
	Data    []byte
	IsFinal bool
	VideoID string
	FPS     float64 // only meaningful when IsFinal
}

// ClampFPS maps a decoder-reported rate to the effective rate:
// DefaultFPS when native <= 0 or native > 100, otherwise min(native, MaxFPS).
func ClampFPS(native float64) float64 {
	if math.IsNaN(native) || native <= 0 || native > implausibleFPS {
		return DefaultFPS
	}
	return math.Min(native, MaxFPS)
}

// Decoder produces decoded images from one opened video file.
type Decoder interface {
	// FrameRate is the native rate reported by the container.
	FrameRate() float64
	// Next returns the next decoded image, or io.EOF after the last one.
	// The returned image is only valid until the following call.
	Next(ctx context.Context) (image.Image, error)
	// Close releases the decoder. It must be safe to call more than once.
	Close() error
}

// Opener opens decoders for files on local storage.
type Opener interface {
	Open(ctx context.Context, path string) (Decoder, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, path string) (Decoder, error)

func (f OpenerFunc) Open(ctx context.Context, path string) (Decoder, error) {
	return f(ctx, path)
}
