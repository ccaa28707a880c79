// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package job

import (
	"context"
	"fmt"
	"path/filepath"
)

// Store persists job records. Implementations are safe for concurrent use.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context) ([]Record, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// StoreConfig selects and locates a Store backend.
type StoreConfig struct {
	Backend   string // memory|sqlite|badger|redis
	Path      string // file (sqlite) or directory (badger)
	RedisAddr string
}

// OpenStore creates a Store based on the backend configuration. On error the
// returned Store is a nil interface, never a typed nil.
func OpenStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		path := cfg.Path
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "jobs.sqlite")
		}
		s, err := OpenSQLiteStore(ctx, path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "badger":
		s, err := OpenBadgerStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		s, err := OpenRedisStore(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}
