// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package rpc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/ManuGH/streamstage/internal/media/mediatest"
	"github.com/ManuGH/streamstage/internal/resilience"
	"github.com/ManuGH/streamstage/internal/rpc"
	"github.com/ManuGH/streamstage/internal/rpc/rpctest"
)

func TestConnPoolAcquireRelease(t *testing.T) {
	pool := rpc.NewConnPool([]rpc.Backend{
		{Name: rpc.BackendFaceDetect, Address: "passthrough:///127.0.0.1:50052"},
		{Name: "custom", Address: "passthrough:///127.0.0.1:50099", Method: "/x.Y/Z"},
	})
	t.Cleanup(func() { _ = pool.Close() })

	lease, err := pool.Acquire(context.Background(), rpc.BackendFaceDetect)
	require.NoError(t, err)
	assert.Equal(t, rpc.DefaultMethods[rpc.BackendFaceDetect], lease.Method)
	assert.Equal(t, 1, pool.InUse(rpc.BackendFaceDetect))

	second, err := pool.Acquire(context.Background(), rpc.BackendFaceDetect)
	require.NoError(t, err)
	assert.Same(t, lease.Conn, second.Conn, "connections are shared across leases")

	lease.Release(nil)
	lease.Release(nil)
	assert.Equal(t, 1, pool.InUse(rpc.BackendFaceDetect), "double release must be ignored")
	second.Release(nil)
	assert.Zero(t, pool.InUse(rpc.BackendFaceDetect))
	assert.Equal(t, 2, pool.Acquisitions(rpc.BackendFaceDetect))

	custom, err := pool.Acquire(context.Background(), "custom")
	require.NoError(t, err)
	assert.Equal(t, "/x.Y/Z", custom.Method)
	custom.Release(nil)
}

func TestConnPoolRejects(t *testing.T) {
	pool := rpc.NewConnPool([]rpc.Backend{{Name: rpc.BackendFaceDetect, Address: "passthrough:///127.0.0.1:50052"}})

	_, err := pool.Acquire(context.Background(), "missing")
	require.ErrorIs(t, err, rpc.ErrUnknownBackend)
	assert.Zero(t, pool.Acquisitions("missing"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pool.Acquire(ctx, rpc.BackendFaceDetect)
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())
	_, err = pool.Acquire(context.Background(), rpc.BackendFaceDetect)
	require.ErrorIs(t, err, rpc.ErrPoolClosed)
}

func TestConnPoolBreakerOpensAfterFailedExchanges(t *testing.T) {
	srv := rpctest.NewServer(t)
	srv.Handle(rpc.BackendObjectDetect, rpctest.FailAfter(0, codes.Internal))

	pool := srv.Pool(t, rpc.BackendObjectDetect)
	client := rpc.NewDuplexClient(pool)

	// Default threshold is five consecutive failures.
	for i := 0; i < 5; i++ {
		src := openSource(t, &mediatest.Opener{Rate: 25, Frames: 2}, "vid")
		_, err := client.Exchange(context.Background(), rpc.BackendObjectDetect, src, func(rpc.Chunk) {})
		require.ErrorIs(t, err, rpc.ErrTransport)
	}
	assert.Equal(t, 5, srv.Calls(rpc.BackendObjectDetect))

	_, err := pool.Acquire(context.Background(), rpc.BackendObjectDetect)
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 5, pool.Acquisitions(rpc.BackendObjectDetect))

	src := openSource(t, &mediatest.Opener{Rate: 25, Frames: 2}, "vid")
	_, err = client.Exchange(context.Background(), rpc.BackendObjectDetect, src, func(rpc.Chunk) {})
	require.ErrorIs(t, err, rpc.ErrTransport)
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 5, srv.Calls(rpc.BackendObjectDetect), "open breaker must not reach the backend")
}

func TestConnPoolBreakerConfigurable(t *testing.T) {
	pool := rpc.NewConnPool(
		[]rpc.Backend{{Name: rpc.BackendPreProcess, Address: "passthrough:///127.0.0.1:50051"}},
		rpc.WithBreaker(1, time.Hour),
	)
	t.Cleanup(func() { _ = pool.Close() })

	lease, err := pool.Acquire(context.Background(), rpc.BackendPreProcess)
	require.NoError(t, err)
	lease.Release(assert.AnError)

	_, err = pool.Acquire(context.Background(), rpc.BackendPreProcess)
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
}
