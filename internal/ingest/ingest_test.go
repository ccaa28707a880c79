// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamstage/internal/job"
)

func newIngestor(t *testing.T, maxBytes int64) (*Ingestor, string) {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	in := New(root, maxBytes)
	in.newID = func() string { return "job-1" }
	return in, root
}

func TestSaveCreatesPendingJob(t *testing.T) {
	in, root := newIngestor(t, 1024)

	j, err := in.Save(context.Background(), strings.NewReader("video-bytes"), "clip.mp4")
	require.NoError(t, err)

	assert.Equal(t, "job-1", j.ID)
	assert.Equal(t, filepath.Join(root, UploadsDir, "job-1"), j.Dir)
	assert.Equal(t, "clip.mp4", j.Filename)
	assert.Equal(t, job.StatusPending, j.Status)

	data, err := os.ReadFile(j.Path())
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(data))
}

func TestSaveGeneratesDistinctIDs(t *testing.T) {
	root := t.TempDir()
	in := New(root, 0)

	a, err := in.Save(context.Background(), strings.NewReader("a"), "a.mp4")
	require.NoError(t, err)
	b, err := in.Save(context.Background(), strings.NewReader("b"), "b.mp4")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestSaveRejectsOversizedUpload(t *testing.T) {
	in, root := newIngestor(t, 4)

	_, err := in.Save(context.Background(), strings.NewReader("12345"), "clip.mp4")
	require.ErrorIs(t, err, ErrTooLarge)
	assert.NoDirExists(t, filepath.Join(root, UploadsDir, "job-1"))
}

func TestSaveAcceptsUploadAtLimit(t *testing.T) {
	in, _ := newIngestor(t, 4)

	_, err := in.Save(context.Background(), strings.NewReader("1234"), "clip.mp4")
	require.NoError(t, err)
}

func TestSaveRejectsEmptyUpload(t *testing.T) {
	in, root := newIngestor(t, 0)

	_, err := in.Save(context.Background(), strings.NewReader(""), "clip.mp4")
	require.ErrorIs(t, err, ErrEmpty)
	assert.NoDirExists(t, filepath.Join(root, UploadsDir, "job-1"))
}

func TestSaveHonoursCancellation(t *testing.T) {
	in, _ := newIngestor(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := in.Save(ctx, strings.NewReader("data"), "clip.mp4")
	require.ErrorIs(t, err, context.Canceled)
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"clip.mp4":              "clip.mp4",
		"../../etc/passwd":      "passwd",
		`C:\videos\holiday.mp4`: "holiday.mp4",
		"":                      DefaultFilename,
		"..":                    DefaultFilename,
		".hidden":               DefaultFilename,
		"  spaced.mp4 ":         "spaced.mp4",
	}
	for in, want := range cases {
		assert.Equal(t, want, sanitizeFilename(in), in)
	}
}
