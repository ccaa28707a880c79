// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/ManuGH/streamstage/internal/log"
	"github.com/ManuGH/streamstage/internal/media"
	"github.com/ManuGH/streamstage/internal/metrics"
	"github.com/ManuGH/streamstage/internal/telemetry"
)

const defaultDrainGrace = 10 * time.Second

var bidiStreamDesc = grpc.StreamDesc{
	StreamName:    "bidi",
	ServerStreams: true,
	ClientStreams: true,
}

// FrameReader is the send-side input of an exchange. media.Source implements it.
type FrameReader interface {
	Next(ctx context.Context) (media.Frame, error)
}

// Chunk is one response payload, delivered in arrival order.
type Chunk struct {
	Data []byte
}

// Summary describes what crossed the stream, successful or not.
type Summary struct {
	FramesSent     int
	ChunksReceived int
	FinalSent      bool
}

// DuplexClient performs one bidirectional exchange per call.
type DuplexClient struct {
	pool       Provider
	drainGrace time.Duration
	logger     zerolog.Logger
}

// ClientOption configures a DuplexClient.
type ClientOption func(*DuplexClient)

// WithDrainGrace bounds how long responses may keep draining after the caller
// cancels an exchange whose terminal frame was already sent.
func WithDrainGrace(d time.Duration) ClientOption {
	return func(c *DuplexClient) {
		if d > 0 {
			c.drainGrace = d
		}
	}
}

// NewDuplexClient returns a client acquiring connections from pool.
func NewDuplexClient(pool Provider, opts ...ClientOption) *DuplexClient {
	c := &DuplexClient{
		pool:       pool,
		drainGrace: defaultDrainGrace,
		logger:     log.WithComponent("rpc.duplex"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Exchange streams frames to backend while concurrently delivering responses
// to sink. sink is only ever called from the receive goroutine, in arrival
// order. Chunks that arrived before a mid-stream failure have already been
// delivered when Exchange returns the error.
//
// Cancelling ctx before the terminal frame is sent aborts the call and stops
// frame production; cancelling afterwards lets responses drain until the
// backend ends the stream or the drain grace elapses.
func (c *DuplexClient) Exchange(ctx context.Context, backend string, frames FrameReader, sink func(Chunk)) (sum Summary, err error) {
	ctx, span := telemetry.Tracer("rpc").Start(ctx, "rpc.exchange",
		trace.WithAttributes(attribute.String(telemetry.BackendKey, backend)))
	defer func() {
		span.SetAttributes(telemetry.ExchangeAttributes(sum.FramesSent, sum.ChunksReceived)...)
		telemetry.EndSpan(span, err)
	}()
	logger := log.WithContext(ctx, c.logger).With().Str(log.FieldBackend, backend).Logger()

	lease, err := c.pool.Acquire(ctx, backend)
	if err != nil {
		metrics.ExchangeErrors.WithLabelValues(backend, "acquire").Inc()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return sum, ctxErr
		}
		return sum, fmt.Errorf("%w: acquire %s: %w", ErrTransport, backend, err)
	}
	var backendFailure error
	defer func() { lease.Release(backendFailure) }()

	// The stream is detached from ctx so that cancellation can be deferred
	// until responses to an already-terminated send direction have drained.
	streamCtx, cancelStream := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelStream()

	var finalQueued atomic.Bool
	stopWatch := context.AfterFunc(ctx, func() {
		if !finalQueued.Load() {
			cancelStream()
			return
		}
		time.AfterFunc(c.drainGrace, cancelStream)
	})
	defer stopWatch()

	stream, err := lease.Conn.NewStream(telemetry.InjectOutgoing(streamCtx), &bidiStreamDesc, lease.Method, grpc.ForceCodec(Codec{}))
	if err != nil {
		metrics.ExchangeErrors.WithLabelValues(backend, "open").Inc()
		backendFailure = err
		return sum, fmt.Errorf("%w: open stream %s: %w", ErrTransport, lease.Method, err)
	}

	logger.Debug().
		Str(log.FieldEvent, "exchange.open").
		Str(log.FieldMethod, lease.Method).
		Msg("stream opened")

	g, gctx := errgroup.WithContext(streamCtx)
	var (
		sent, received int
		finalSent      bool
		sourceErr      error // set by the send goroutine only, read after Wait
	)

	// Send direction: drain frames without waiting for responses.
	g.Go(func() error {
		for {
			f, err := frames.Next(gctx)
			if errors.Is(err, io.EOF) {
				return stream.CloseSend()
			}
			if err != nil {
				if gctx.Err() == nil {
					sourceErr = err
				}
				cancelStream()
				return err
			}
			req := &FrameRequest{Data: f.Data, IsFinal: f.IsFinal, VideoID: f.VideoID}
			if f.IsFinal {
				req.FPS = float32(f.FPS)
				finalQueued.Store(true)
			}
			if err := stream.SendMsg(req); err != nil {
				if errors.Is(err, io.EOF) {
					// The backend ended the call; RecvMsg carries its status.
					return nil
				}
				cancelStream()
				return fmt.Errorf("%w: send frame %d: %w", ErrTransport, sent, err)
			}
			sent++
			metrics.FramesSent.WithLabelValues(backend).Inc()
			if f.IsFinal {
				finalSent = true
				return stream.CloseSend()
			}
		}
	})

	// Receive direction: deliver chunks as they arrive.
	g.Go(func() error {
		for {
			resp := new(FrameResponse)
			if err := stream.RecvMsg(resp); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return fmt.Errorf("%w: receive from %s: %w", ErrTransport, backend, err)
			}
			received++
			metrics.ChunksReceived.WithLabelValues(backend).Inc()
			sink(Chunk{Data: resp.Data})
		}
	})

	err = g.Wait()
	sum = Summary{FramesSent: sent, ChunksReceived: received, FinalSent: finalSent}

	if err != nil {
		switch {
		case ctx.Err() != nil:
			err = fmt.Errorf("exchange with %s cancelled: %w", backend, ctx.Err())
			metrics.ExchangeErrors.WithLabelValues(backend, "cancelled").Inc()
		case sourceErr != nil:
			err = sourceErr
			metrics.ExchangeErrors.WithLabelValues(backend, "source").Inc()
		default:
			backendFailure = err
			metrics.ExchangeErrors.WithLabelValues(backend, "stream").Inc()
		}
		logger.Warn().Err(err).
			Str(log.FieldEvent, "exchange.failed").
			Int(log.FieldFrames, sum.FramesSent).
			Int(log.FieldChunks, sum.ChunksReceived).
			Msg("exchange failed; keeping chunks received so far")
		return sum, err
	}

	logger.Debug().
		Str(log.FieldEvent, "exchange.closed").
		Int(log.FieldFrames, sum.FramesSent).
		Int(log.FieldChunks, sum.ChunksReceived).
		Msg("both directions reached end of stream")
	return sum, nil
}
