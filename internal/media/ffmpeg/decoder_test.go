// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamstage/internal/media"
)

// makeClip renders a short synthetic clip; the test is skipped when the
// binaries are not installed.
func makeClip(t *testing.T, frames int, rate string) string {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}
	path := filepath.Join(t.TempDir(), "clip.mp4")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "ffmpeg", "-v", "error", "-f", "lavfi",
		"-i", "testsrc=size=64x48:rate="+rate,
		"-frames:v", strconv.Itoa(frames), "-c:v", "mpeg4", "-y", path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Skipf("cannot render test clip: %v: %s", err, out)
	}
	return path
}

func TestDecoderReadsAllFrames(t *testing.T) {
	path := makeClip(t, 5, "10")

	dec, err := NewOpener("", "").Open(context.Background(), path)
	require.NoError(t, err)
	defer dec.Close()

	require.InDelta(t, 10.0, dec.FrameRate(), 0.01)

	n := 0
	for {
		img, err := dec.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		require.Equal(t, 64, img.Bounds().Dx())
		require.Equal(t, 48, img.Bounds().Dy())
		n++
	}
	require.Equal(t, 5, n)
	require.NoError(t, dec.Close())
}

func TestDecoderCloseMidStream(t *testing.T) {
	path := makeClip(t, 30, "30")

	dec, err := NewOpener("", "").Open(context.Background(), path)
	require.NoError(t, err)

	_, err = dec.Next(context.Background())
	require.NoError(t, err)
	require.NoError(t, dec.Close())
	require.NoError(t, dec.Close())

	_, err = dec.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestSourceOverFFmpeg(t *testing.T) {
	path := makeClip(t, 3, "25")

	src, err := media.Open(context.Background(), NewOpener("", ""), path, "vid")
	require.NoError(t, err)
	defer src.Close()

	var frames []media.Frame
	for {
		f, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		frames = append(frames, f)
	}
	require.Len(t, frames, 4)
	require.True(t, frames[3].IsFinal)
	require.InDelta(t, 25.0, frames[3].FPS, 0.01)
}

func TestOpenRejectsNonVideo(t *testing.T) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}
	path := filepath.Join(t.TempDir(), "garbage.mp4")
	require.NoError(t, writeFile(path, []byte("definitely not a container")))

	_, err := NewOpener("", "").Open(context.Background(), path)
	require.Error(t, err)
}

func writeFile(path string, b []byte) error {
	return os.WriteFile(path, b, 0o644)
}
