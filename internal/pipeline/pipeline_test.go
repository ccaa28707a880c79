// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/ManuGH/streamstage/internal/artifact"
	"github.com/ManuGH/streamstage/internal/job"
	"github.com/ManuGH/streamstage/internal/media"
	"github.com/ManuGH/streamstage/internal/media/mediatest"
	"github.com/ManuGH/streamstage/internal/metrics"
	"github.com/ManuGH/streamstage/internal/pipeline"
	"github.com/ManuGH/streamstage/internal/rpc"
	"github.com/ManuGH/streamstage/internal/rpc/rpctest"
)

type fixture struct {
	root   string
	srv    *rpctest.Server
	pool   *rpc.ConnPool
	runner *pipeline.StageRunner
}

func newFixture(t *testing.T, opener media.Opener) *fixture {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	srv := rpctest.NewServer(t)
	pool := srv.Pool(t, rpc.BackendPreProcess, rpc.BackendFaceDetect, rpc.BackendObjectDetect)
	runner := pipeline.NewStageRunner(opener, rpc.NewDuplexClient(pool), artifact.NewFileStore(root))
	return &fixture{root: root, srv: srv, pool: pool, runner: runner}
}

// upload places a placeholder video under uploads/<id> and returns its job.
func (f *fixture) upload(t *testing.T, id string) *job.Job {
	t.Helper()
	dir := filepath.Join(f.root, "uploads", id)
	mediatest.WriteVideo(t, dir, "clip.mp4")
	return job.New(id, dir, "clip.mp4")
}

func (f *fixture) chain(t *testing.T, name string) *pipeline.Chain {
	t.Helper()
	c, err := pipeline.NewChain(pipeline.Presets()[name], f.runner)
	require.NoError(t, err)
	return c
}

func chunks(prefix string, n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte(fmt.Sprintf("%s-%d", prefix, i))
	}
	return out
}

func TestSourceAbsentContactsNoBackend(t *testing.T) {
	f := newFixture(t, &mediatest.Opener{Rate: 25, Frames: 5})
	j := job.New("missing", filepath.Join(f.root, "uploads", "missing"), "clip.mp4")

	_, err := f.chain(t, pipeline.PipelineFace).Run(context.Background(), j)
	require.ErrorIs(t, err, pipeline.ErrSourceUnavailable)
	require.ErrorIs(t, err, pipeline.ErrStageFailed)
	assert.NotErrorIs(t, err, pipeline.ErrTransportFailure)

	assert.Zero(t, f.pool.Acquisitions(rpc.BackendFaceDetect))
	assert.Zero(t, f.srv.Calls(rpc.BackendFaceDetect))
	assert.Equal(t, job.StatusFailed, j.Status)
}

func TestImplausibleRateAnnouncedAsThirty(t *testing.T) {
	f := newFixture(t, &mediatest.Opener{Rate: 250, Frames: 3})
	f.srv.Handle(rpc.BackendFaceDetect, rpctest.EchoN(1))
	j := f.upload(t, "fast")

	_, err := f.chain(t, pipeline.PipelineFace).Run(context.Background(), j)
	require.NoError(t, err)

	reqs := f.srv.Requests(rpc.BackendFaceDetect)
	require.NotEmpty(t, reqs)
	last := reqs[len(reqs)-1]
	assert.True(t, last.IsFinal)
	assert.Equal(t, float32(30), last.FPS)
	assert.Equal(t, 30.0, j.FPS)
}

func TestSingleStageEchoCompletes(t *testing.T) {
	f := newFixture(t, &mediatest.Opener{Rate: 25, Frames: 8})
	f.srv.Handle(rpc.BackendFaceDetect, rpctest.EchoN(5))
	j := f.upload(t, "single")
	before := testutil.ToFloat64(metrics.ChainRuns.WithLabelValues(pipeline.PipelineFace, "success"))

	loc, err := f.chain(t, pipeline.PipelineFace).Run(context.Background(), j)
	require.NoError(t, err)

	want := filepath.Join(f.root, pipeline.TargetFaceDetection, j.ID)
	assert.Equal(t, want, loc)
	assert.Equal(t, want, j.Dir)
	assert.Equal(t, job.StatusCompleted, j.Status)
	if diff := cmp.Diff(chunks("chunk", 5), j.Output); diff != "" {
		t.Fatalf("output mismatch (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(filepath.Join(want, "clip.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "chunk-0chunk-1chunk-2chunk-3chunk-4", string(data))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ChainRuns.WithLabelValues(pipeline.PipelineFace, "success")))
}

func TestSameFilenameJobsKeepSeparateArtifacts(t *testing.T) {
	f := newFixture(t, &mediatest.Opener{Rate: 25, Frames: 3})
	f.srv.Handle(rpc.BackendFaceDetect, rpctest.EchoVideoID())
	c := f.chain(t, pipeline.PipelineFace)

	a, b := f.upload(t, "job-a"), f.upload(t, "job-b")
	require.Equal(t, a.Filename, b.Filename)

	locA, err := c.Run(context.Background(), a)
	require.NoError(t, err)
	locB, err := c.Run(context.Background(), b)
	require.NoError(t, err)
	require.NotEqual(t, locA, locB)

	for loc, want := range map[string]string{locA: "job-a", locB: "job-b"} {
		data, err := os.ReadFile(filepath.Join(loc, "clip.mp4"))
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}
}

func TestTwoStageFailureShortCircuits(t *testing.T) {
	f := newFixture(t, &mediatest.Opener{Rate: 25, Frames: 10})
	f.srv.Handle(rpc.BackendPreProcess, rpctest.FailAfter(2, codes.Unavailable))
	f.srv.Handle(rpc.BackendObjectDetect, rpctest.EchoN(5))
	j := f.upload(t, "withpre")
	origin := j.Dir

	loc, err := f.chain(t, pipeline.PipelineWithPre).Run(context.Background(), j)
	require.Error(t, err)
	assert.Empty(t, loc)
	require.ErrorIs(t, err, pipeline.ErrTransportFailure)

	var stageErr *pipeline.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, 0, stageErr.Stage)
	assert.Equal(t, rpc.BackendPreProcess, stageErr.Backend)

	assert.Equal(t, origin, j.Dir, "location must not move on failure")
	assert.Equal(t, job.StatusFailed, j.Status)
	assert.Len(t, j.Output, 2, "partial chunks are kept for diagnostics")

	assert.Zero(t, f.pool.Acquisitions(rpc.BackendObjectDetect))
	assert.Zero(t, f.srv.Calls(rpc.BackendObjectDetect))
	assert.NoDirExists(t, filepath.Join(f.root, pipeline.TargetPreProcess))
}

func TestTwoStageRecomputesRatePerStage(t *testing.T) {
	opener := media.OpenerFunc(func(_ context.Context, path string) (media.Decoder, error) {
		rate := 250.0
		if strings.Contains(path, pipeline.TargetPreProcess) {
			rate = 24
		}
		return &mediatest.Decoder{Rate: rate, Frames: 4}, nil
	})
	f := newFixture(t, opener)
	f.srv.Handle(rpc.BackendPreProcess, rpctest.EchoN(3))
	f.srv.Handle(rpc.BackendObjectDetect, rpctest.EchoN(2))
	j := f.upload(t, "rates")

	loc, err := f.chain(t, pipeline.PipelineWithPre).Run(context.Background(), j)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.root, pipeline.TargetObjectDetection, j.ID), loc)
	assert.FileExists(t, filepath.Join(f.root, pipeline.TargetPreProcess, j.ID, "clip.mp4"))

	finalFPS := func(backend string) float32 {
		reqs := f.srv.Requests(backend)
		require.NotEmpty(t, reqs)
		return reqs[len(reqs)-1].FPS
	}
	assert.Equal(t, float32(30), finalFPS(rpc.BackendPreProcess))
	assert.Equal(t, float32(24), finalFPS(rpc.BackendObjectDetect))
	assert.Equal(t, 24.0, j.FPS)
	assert.Len(t, j.Output, 2, "each stage replaces the buffer")
}

func TestRerunIsIdempotent(t *testing.T) {
	f := newFixture(t, &mediatest.Opener{Rate: 25, Frames: 6})
	f.srv.Handle(rpc.BackendObjectDetect, rpctest.EchoFrames())
	c := f.chain(t, pipeline.PipelineObject)
	src := f.upload(t, "same")

	var counts []int
	for i := 0; i < 2; i++ {
		j := job.New(fmt.Sprintf("run-%d", i), src.Dir, src.Filename)
		_, err := c.Run(context.Background(), j)
		require.NoError(t, err)
		counts = append(counts, len(j.Output))
	}
	assert.Equal(t, []int{6, 6}, counts)
}

type failingStore struct{}

func (failingStore) Save(context.Context, string, string, string, [][]byte) (string, error) {
	return "", errors.New("disk full")
}

func TestPersistenceFailureLeavesLocation(t *testing.T) {
	f := newFixture(t, &mediatest.Opener{Rate: 25, Frames: 2})
	f.srv.Handle(rpc.BackendFaceDetect, rpctest.EchoN(2))
	f.runner.Artifacts = failingStore{}
	j := f.upload(t, "persist")
	origin := j.Dir

	_, err := f.chain(t, pipeline.PipelineFace).Run(context.Background(), j)
	require.ErrorIs(t, err, pipeline.ErrPersistenceFailure)
	require.ErrorIs(t, err, pipeline.ErrStageFailed)
	assert.Equal(t, "persistence", pipeline.Kind(err))
	assert.Equal(t, origin, j.Dir)
	assert.Equal(t, job.StatusFailed, j.Status)
}

func TestCancelledBeforeStartAcquiresNothing(t *testing.T) {
	f := newFixture(t, &mediatest.Opener{Rate: 25, Frames: 2})
	j := f.upload(t, "cancel")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.chain(t, pipeline.PipelineWithPre).Run(ctx, j)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "cancelled", pipeline.Kind(err))
	assert.Zero(t, f.pool.Acquisitions(rpc.BackendPreProcess))
	assert.Equal(t, job.StatusFailed, j.Status)
}

func TestClaimedJobIsRejected(t *testing.T) {
	f := newFixture(t, &mediatest.Opener{Rate: 25, Frames: 2})
	j := f.upload(t, "busy")
	require.NoError(t, j.Claim())

	_, err := f.chain(t, pipeline.PipelineFace).Run(context.Background(), j)
	require.ErrorIs(t, err, job.ErrBusy)
	assert.Equal(t, job.StatusPending, j.Status)
}

func TestChainCopiesSpec(t *testing.T) {
	f := newFixture(t, &mediatest.Opener{Rate: 25, Frames: 2})
	spec := pipeline.Presets()[pipeline.PipelineWithPre]

	c, err := pipeline.NewChain(spec, f.runner)
	require.NoError(t, err)
	spec.Stages[0].Backend = "tampered"

	assert.Equal(t, rpc.BackendPreProcess, c.Spec().Stages[0].Backend)
}

func TestSpecValidate(t *testing.T) {
	for name, spec := range pipeline.Presets() {
		assert.NoError(t, spec.Validate(), name)
	}
	assert.Error(t, pipeline.Spec{Name: "empty"}.Validate())
	assert.Error(t, pipeline.Spec{Name: "x", Stages: []pipeline.StageSpec{{Backend: "b"}}}.Validate())
	assert.Equal(t,
		[]string{rpc.BackendObjectDetect, rpc.BackendPreProcess},
		pipeline.Presets()[pipeline.PipelineWithPre].Backends())
}
