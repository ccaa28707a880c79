// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/streamstage/internal/log"
)

const defaultJPEGQuality = 90

type sourceState int

const (
	stateData sourceState = iota
	stateDone
)

// Source is a lazy, finite, non-restartable frame sequence over one video file.
// It is not safe for concurrent use; the send side of an exchange owns it.
type Source struct {
	dec     Decoder
	path    string
	videoID string

	nativeFPS float64
	fps       float64

	quality int
	limiter *rate.Limiter
	logger  zerolog.Logger

	state    sourceState
	frames   int
	released bool
	closeErr error
}

// Option configures a Source.
type Option func(*Source)

// WithJPEGQuality sets the re-encode quality (1-100).
func WithJPEGQuality(q int) Option {
	return func(s *Source) {
		if q >= 1 && q <= 100 {
			s.quality = q
		}
	}
}

// WithRateLimit paces frame production to at most perSecond frames per second.
// Zero or negative disables pacing.
func WithRateLimit(perSecond float64) Option {
	return func(s *Source) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Source) { s.logger = l }
}

// Open stats path, opens a decoder on it and computes the clamped frame rate.
// Any failure is reported as ErrSourceUnavailable and yields no Source.
func Open(ctx context.Context, opener Opener, path, videoID string, opts ...Option) (*Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrSourceUnavailable, path)
	}

	dec, err := opener.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: open decoder for %s: %w", ErrSourceUnavailable, path, err)
	}

	s := &Source{
		dec:       dec,
		path:      path,
		videoID:   videoID,
		nativeFPS: dec.FrameRate(),
		quality:   defaultJPEGQuality,
		logger:    log.WithComponent("media"),
	}
	s.fps = ClampFPS(s.nativeFPS)
	for _, opt := range opts {
		opt(s)
	}

	s.logger.Debug().
		Str(log.FieldEvent, "source.opened").
		Str(log.FieldJobID, videoID).
		Str(log.FieldPath, path).
		Float64(log.FieldNativeFPS, s.nativeFPS).
		Float64(log.FieldFPS, s.fps).
		Msg("frame source opened")
	return s, nil
}

// FPS is the clamped rate announced in the terminal frame.
func (s *Source) FPS() float64 { return s.fps }

// NativeFPS is the rate reported by the decoder before clamping.
func (s *Source) NativeFPS() float64 { return s.nativeFPS }

// DataFrames is the number of data frames produced so far.
func (s *Source) DataFrames() int { return s.frames }

// Next returns the next frame. After the terminal frame it returns io.EOF.
// A cancelled context or decode error releases the decoder and ends the sequence.
func (s *Source) Next(ctx context.Context) (Frame, error) {
	if s.state == stateDone {
		return Frame{}, io.EOF
	}

	if err := ctx.Err(); err != nil {
		s.finish()
		return Frame{}, err
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			s.finish()
			return Frame{}, err
		}
	}

	img, err := s.dec.Next(ctx)
	if errors.Is(err, io.EOF) {
		s.finish()
		return Frame{IsFinal: true, VideoID: s.videoID, FPS: s.fps}, nil
	}
	if err != nil {
		s.finish()
		return Frame{}, fmt.Errorf("%w: decode frame %d of %s: %w", ErrSourceUnavailable, s.frames, s.path, err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(s.quality)); err != nil {
		s.finish()
		return Frame{}, fmt.Errorf("%w: encode frame %d: %w", ErrSourceUnavailable, s.frames, err)
	}
	s.frames++
	return Frame{Data: buf.Bytes(), VideoID: s.videoID}, nil
}

// Close releases the decoder. It is idempotent.
func (s *Source) Close() error {
	s.finish()
	return s.closeErr
}

func (s *Source) finish() {
	s.state = stateDone
	if s.released {
		return
	}
	s.released = true
	if err := s.dec.Close(); err != nil {
		s.closeErr = err
		s.logger.Warn().Err(err).
			Str(log.FieldEvent, "source.release_failed").
			Str(log.FieldPath, s.path).
			Msg("decoder release failed")
	}
}
