// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ManuGH/streamstage/internal/log"
	"github.com/ManuGH/streamstage/internal/metrics"
	"github.com/ManuGH/streamstage/internal/resilience"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("connection pool closed")

// Provider hands out connection leases per backend name.
type Provider interface {
	Acquire(ctx context.Context, backend string) (*Lease, error)
}

// Lease is a scoped hold on a backend connection. Release must be called
// exactly once per Acquire; further calls are ignored.
type Lease struct {
	Conn    grpc.ClientConnInterface
	Backend Backend
	Method  string

	once    sync.Once
	release func(failure error)
}

// Release returns the lease. A non-nil failure counts against the backend's
// circuit breaker.
func (l *Lease) Release(failure error) {
	l.once.Do(func() {
		if l.release != nil {
			l.release(failure)
		}
	})
}

// ConnPool keeps one lazily dialled client connection per backend. It is safe
// for concurrent use by any number of jobs; connections carry no per-job state.
type ConnPool struct {
	dialOpts         []grpc.DialOption
	breakerThreshold int
	breakerReset     time.Duration
	logger           zerolog.Logger

	mu       sync.Mutex
	backends map[string]Backend
	entries  map[string]*poolEntry
	closed   bool
}

type poolEntry struct {
	conn     *grpc.ClientConn
	breaker  *resilience.CircuitBreaker
	inUse    int
	acquired int
}

// PoolOption configures a ConnPool.
type PoolOption func(*ConnPool)

// WithDialOptions replaces the default dial options (insecure transport).
func WithDialOptions(opts ...grpc.DialOption) PoolOption {
	return func(p *ConnPool) { p.dialOpts = opts }
}

// WithBreaker configures the per-backend circuit breaker.
func WithBreaker(threshold int, resetTimeout time.Duration) PoolOption {
	return func(p *ConnPool) {
		p.breakerThreshold = threshold
		p.breakerReset = resetTimeout
	}
}

// NewConnPool builds a pool over the given backends. No connection is made
// until the first Acquire for a backend.
func NewConnPool(backends []Backend, opts ...PoolOption) *ConnPool {
	p := &ConnPool{
		dialOpts: []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())},
		logger:   log.WithComponent("rpc.pool"),
		backends: make(map[string]Backend, len(backends)),
		entries:  make(map[string]*poolEntry),
	}
	for _, b := range backends {
		p.backends[b.Name] = b
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire returns a lease on the named backend's connection.
func (p *ConnPool) Acquire(ctx context.Context, name string) (*Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	backend, ok := p.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}

	entry, ok := p.entries[name]
	if !ok {
		entry = &poolEntry{breaker: resilience.NewCircuitBreaker(name, p.breakerThreshold, p.breakerReset)}
		p.entries[name] = entry
	}
	if err := entry.breaker.Allow(); err != nil {
		return nil, fmt.Errorf("backend %s: %w", name, err)
	}
	if entry.conn == nil {
		conn, err := grpc.NewClient(backend.Address, p.dialOpts...)
		if err != nil {
			entry.breaker.RecordFailure()
			return nil, fmt.Errorf("dial backend %s at %s: %w", name, backend.Address, err)
		}
		entry.conn = conn
		p.logger.Info().
			Str(log.FieldEvent, "pool.dialed").
			Str(log.FieldBackend, name).
			Str("address", backend.Address).
			Msg("backend connection created")
	}

	entry.inUse++
	entry.acquired++
	metrics.PoolAcquisitions.WithLabelValues(name).Inc()

	return &Lease{
		Conn:    entry.conn,
		Backend: backend,
		Method:  backend.method(),
		release: func(failure error) { p.release(name, entry, failure) },
	}, nil
}

func (p *ConnPool) release(name string, entry *poolEntry, failure error) {
	if failure != nil {
		entry.breaker.RecordFailure()
	} else {
		entry.breaker.RecordSuccess()
	}
	p.mu.Lock()
	entry.inUse--
	p.mu.Unlock()
	p.logger.Debug().
		Str(log.FieldEvent, "pool.released").
		Str(log.FieldBackend, name).
		Bool("failed", failure != nil).
		Msg("lease released")
}

// Acquisitions reports how many leases were handed out for a backend.
func (p *ConnPool) Acquisitions(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[name]; ok {
		return e.acquired
	}
	return 0
}

// InUse reports how many leases on a backend are currently outstanding.
func (p *ConnPool) InUse(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[name]; ok {
		return e.inUse
	}
	return 0
}

// Close closes every connection. Outstanding leases fail on their next call.
func (p *ConnPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	var errs []error
	for name, e := range p.entries {
		if e.conn == nil {
			continue
		}
		if err := e.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
