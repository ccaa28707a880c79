// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package job

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	mr := miniredis.RunT(t)

	stores := map[string]StoreConfig{
		"memory": {Backend: "memory"},
		"sqlite": {Backend: "sqlite", Path: filepath.Join(t.TempDir(), "jobs.sqlite")},
		"badger": {Backend: "badger", Path: t.TempDir()},
		"redis":  {Backend: "redis", RedisAddr: mr.Addr()},
	}
	out := make(map[string]Store, len(stores))
	for name, cfg := range stores {
		s, err := OpenStore(ctx, cfg)
		require.NoError(t, err, name)
		t.Cleanup(func() { _ = s.Close() })
		out[name] = s
	}
	return out
}

func TestStoreBackends(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Get(ctx, "missing")
			require.ErrorIs(t, err, ErrNotFound)

			first := Record{
				ID: "b", Pipeline: "withpre", Dir: "/data/uploads/b", Filename: "clip.mp4",
				FPS: 29.97, Status: StatusPending, Stage: -1, CreatedAt: base, UpdatedAt: base,
			}
			second := Record{
				ID: "a", Pipeline: "face", Dir: "/data/uploads/a", Filename: "other.mp4",
				FPS: 30, Status: StatusPending, Stage: -1, CreatedAt: base.Add(time.Second), UpdatedAt: base,
			}
			require.NoError(t, store.Put(ctx, first))
			require.NoError(t, store.Put(ctx, second))

			got, err := store.Get(ctx, "b")
			require.NoError(t, err)
			if diff := cmp.Diff(first, got); diff != "" {
				t.Fatalf("record mismatch (-want +got):\n%s", diff)
			}

			first.Status = StatusFailed
			first.Stage = 0
			first.Chunks = 2
			first.Error = "transport failure"
			first.UpdatedAt = base.Add(time.Minute)
			require.NoError(t, store.Put(ctx, first))

			list, err := store.List(ctx)
			require.NoError(t, err)
			if diff := cmp.Diff([]Record{first, second}, list); diff != "" {
				t.Fatalf("list mismatch (-want +got):\n%s", diff)
			}

			require.NoError(t, store.Delete(ctx, "b"))
			_, err = store.Get(ctx, "b")
			require.ErrorIs(t, err, ErrNotFound)
			list, err = store.List(ctx)
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}

func TestOpenStoreRejectsUnknownBackend(t *testing.T) {
	_, err := OpenStore(context.Background(), StoreConfig{Backend: "etcd"})
	require.Error(t, err)
}

func TestOpenStoreSQLiteDirectory(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenStore(context.Background(), StoreConfig{Backend: "sqlite", Path: dir})
	require.NoError(t, err)
	defer s.Close()
	assert.FileExists(t, filepath.Join(dir, "jobs.sqlite"))
}

func TestOpenRedisStoreUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := OpenRedisStore(context.Background(), addr)
	require.Error(t, err)
}

func TestOpenStoreFailureReturnsNilInterface(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	notDir := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(notDir, []byte("x"), 0o600))

	for name, cfg := range map[string]StoreConfig{
		"redis":  {Backend: "redis", RedisAddr: addr},
		"badger": {Backend: "badger", Path: notDir},
		"sqlite": {Backend: "sqlite", Path: filepath.Join(notDir, "jobs.sqlite")},
	} {
		t.Run(name, func(t *testing.T) {
			s, err := OpenStore(context.Background(), cfg)
			require.Error(t, err)
			// require.Nil also accepts a typed nil pointer, which would
			// still panic in a caller's Close.
			if s != nil {
				t.Fatalf("OpenStore returned non-nil %T on error", s)
			}
		})
	}
}
