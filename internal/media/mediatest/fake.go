// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package mediatest provides in-memory decoders for tests that must not depend
// on an ffmpeg binary.
package mediatest

import (
	"context"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ManuGH/streamstage/internal/media"
)

// Decoder yields Frames solid-colour images, then io.EOF. If FailAfter is
// positive, the call after FailAfter images returns Err instead.
type Decoder struct {
	Rate      float64
	Frames    int
	FailAfter int
	Err       error

	mu     sync.Mutex
	served int
	closes atomic.Int32
}

func (d *Decoder) FrameRate() float64 { return d.Rate }

func (d *Decoder) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailAfter > 0 && d.served == d.FailAfter {
		return nil, d.Err
	}
	if d.served >= d.Frames {
		return nil, io.EOF
	}
	d.served++
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	shade := uint8(d.served * 20)
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = shade, shade, shade, 0xff
	}
	return img, nil
}

func (d *Decoder) Close() error {
	d.closes.Add(1)
	return nil
}

// Served is the number of images handed out so far.
func (d *Decoder) Served() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.served
}

// Closes is the number of Close calls observed.
func (d *Decoder) Closes() int { return int(d.closes.Load()) }

// Opener hands out a fresh Decoder per Open, configured from a template.
// Every decoder it created is kept so tests can assert on release.
type Opener struct {
	Rate      float64
	Frames    int
	FailAfter int
	Err       error
	OpenErr   error

	mu     sync.Mutex
	opened []*Decoder
}

func (o *Opener) Open(_ context.Context, _ string) (media.Decoder, error) {
	if o.OpenErr != nil {
		return nil, o.OpenErr
	}
	d := &Decoder{Rate: o.Rate, Frames: o.Frames, FailAfter: o.FailAfter, Err: o.Err}
	o.mu.Lock()
	o.opened = append(o.opened, d)
	o.mu.Unlock()
	return d, nil
}

// Opened returns the decoders created so far.
func (o *Opener) Opened() []*Decoder {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Decoder(nil), o.opened...)
}

// WriteVideo creates a placeholder file the Source can stat. Its contents are
// irrelevant to the fake decoders.
func WriteVideo(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if err := os.WriteFile(path, []byte("not really a video"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
