// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package media_test

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamstage/internal/media"
	"github.com/ManuGH/streamstage/internal/media/mediatest"
)

func TestClampFPS(t *testing.T) {
	cases := []struct {
		native float64
		want   float64
	}{
		{native: -1, want: 30},
		{native: 0, want: 30},
		{native: 12.5, want: 12.5},
		{native: 25, want: 25},
		{native: 29.97, want: 29.97},
		{native: 30, want: 30},
		{native: 60, want: 30},
		{native: 100, want: 30},
		{native: 100.01, want: 30},
		{native: 250, want: 30},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, media.ClampFPS(tc.native), "native=%v", tc.native)
	}
}

func drain(t *testing.T, src *media.Source) []media.Frame {
	t.Helper()
	var out []media.Frame
	for {
		f, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, f)
	}
}

func TestSourceEmitsDataThenSingleTerminalFrame(t *testing.T) {
	dir := t.TempDir()
	path := mediatest.WriteVideo(t, dir, "clip.mp4")
	opener := &mediatest.Opener{Rate: 250, Frames: 4}

	src, err := media.Open(context.Background(), opener, path, "vid-1")
	require.NoError(t, err)
	defer src.Close()

	frames := drain(t, src)
	require.Len(t, frames, 5)
	for i, f := range frames[:4] {
		assert.False(t, f.IsFinal, "frame %d", i)
		assert.Equal(t, "vid-1", f.VideoID)
		_, err := jpeg.Decode(bytes.NewReader(f.Data))
		assert.NoError(t, err, "frame %d must be a JPEG", i)
	}

	last := frames[4]
	assert.True(t, last.IsFinal)
	assert.Empty(t, last.Data)
	assert.Equal(t, "vid-1", last.VideoID)
	assert.Equal(t, 30.0, last.FPS, "implausible native rate is replaced by the default")

	// Sequence is not restartable.
	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	dec := opener.Opened()[0]
	assert.Equal(t, 1, dec.Closes(), "decoder released once on normal completion")
	require.NoError(t, src.Close())
	assert.Equal(t, 1, dec.Closes(), "Close after completion does not double-release")
}

func TestSourceCarriesClampedNativeRate(t *testing.T) {
	path := mediatest.WriteVideo(t, t.TempDir(), "clip.mp4")
	src, err := media.Open(context.Background(), &mediatest.Opener{Rate: 24, Frames: 1}, path, "v")
	require.NoError(t, err)
	defer src.Close()

	frames := drain(t, src)
	require.Len(t, frames, 2)
	assert.Equal(t, 24.0, frames[1].FPS)
	assert.Equal(t, 24.0, src.NativeFPS())
}

func TestSourceMissingFileIsUnavailable(t *testing.T) {
	opener := &mediatest.Opener{Rate: 25, Frames: 3}
	_, err := media.Open(context.Background(), opener, filepath.Join(t.TempDir(), "absent.mp4"), "v")
	require.ErrorIs(t, err, media.ErrSourceUnavailable)
	assert.Empty(t, opener.Opened(), "no decoder may be opened for a missing file")
}

func TestSourceDirectoryIsUnavailable(t *testing.T) {
	_, err := media.Open(context.Background(), &mediatest.Opener{}, t.TempDir(), "v")
	require.ErrorIs(t, err, media.ErrSourceUnavailable)
}

func TestSourceDecoderOpenFailureIsUnavailable(t *testing.T) {
	path := mediatest.WriteVideo(t, t.TempDir(), "corrupt.mp4")
	_, err := media.Open(context.Background(), &mediatest.Opener{OpenErr: errors.New("moov atom not found")}, path, "v")
	require.ErrorIs(t, err, media.ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "moov atom not found")
}

func TestSourceReleasesOnEarlyClose(t *testing.T) {
	path := mediatest.WriteVideo(t, t.TempDir(), "clip.mp4")
	opener := &mediatest.Opener{Rate: 25, Frames: 100}
	src, err := media.Open(context.Background(), opener, path, "v")
	require.NoError(t, err)

	_, err = src.Next(context.Background())
	require.NoError(t, err)
	require.NoError(t, src.Close())

	dec := opener.Opened()[0]
	assert.Equal(t, 1, dec.Closes())
	assert.Equal(t, 1, dec.Served())

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF, "no frames after close")
}

func TestSourceReleasesOnDecodeError(t *testing.T) {
	path := mediatest.WriteVideo(t, t.TempDir(), "clip.mp4")
	boom := errors.New("bitstream error")
	opener := &mediatest.Opener{Rate: 25, Frames: 10, FailAfter: 2, Err: boom}
	src, err := media.Open(context.Background(), opener, path, "v")
	require.NoError(t, err)
	defer src.Close()

	for i := 0; i < 2; i++ {
		_, err := src.Next(context.Background())
		require.NoError(t, err)
	}
	_, err = src.Next(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, opener.Opened()[0].Closes())

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestSourceStopsOnCancelledContext(t *testing.T) {
	path := mediatest.WriteVideo(t, t.TempDir(), "clip.mp4")
	opener := &mediatest.Opener{Rate: 25, Frames: 10}
	src, err := media.Open(context.Background(), opener, path, "v")
	require.NoError(t, err)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)

	dec := opener.Opened()[0]
	assert.Equal(t, 0, dec.Served(), "no decode step after cancellation")
	assert.Equal(t, 1, dec.Closes())
}

func TestSourceRateLimitDoesNotChangeAnnouncedFPS(t *testing.T) {
	path := mediatest.WriteVideo(t, t.TempDir(), "clip.mp4")
	src, err := media.Open(context.Background(), &mediatest.Opener{Rate: 25, Frames: 2}, path, "v",
		media.WithRateLimit(1000), media.WithJPEGQuality(50))
	require.NoError(t, err)
	defer src.Close()

	frames := drain(t, src)
	require.Len(t, frames, 3)
	assert.Equal(t, 25.0, frames[2].FPS)
	assert.Equal(t, 2, src.DataFrames())
}
