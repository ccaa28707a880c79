// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package media turns a stored video file into the ordered, rate-capped frame
// sequence that is streamed to detection backends.
//
// A Source wraps one Decoder for the lifetime of a single stage. It yields JPEG
// data frames in file order, then exactly one terminal frame carrying the
// clamped frame rate, then io.EOF. The decoder is released on every exit path.
package media
