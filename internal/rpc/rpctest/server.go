// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package rpctest runs scripted detection backends in-process over bufconn.
package rpctest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/ManuGH/streamstage/internal/rpc"
)

const bufSize = 1 << 20

// Handler scripts one backend call.
type Handler func(s *Stream) error

// Stream is the server side of one call.
type Stream struct {
	grpc.ServerStream
}

// Recv reads the next frame request; io.EOF once the client closed its side.
func (s *Stream) Recv() (*rpc.FrameRequest, error) {
	req := new(rpc.FrameRequest)
	if err := s.RecvMsg(req); err != nil {
		return nil, err
	}
	return req, nil
}

// Send writes one response chunk.
func (s *Stream) Send(data []byte) error {
	return s.SendMsg(&rpc.FrameResponse{Data: data})
}

// Server is a bufconn gRPC server dispatching calls by full method name.
type Server struct {
	lis *bufconn.Listener
	srv *grpc.Server

	mu       sync.Mutex
	handlers map[string]Handler
	calls    map[string]int
	requests map[string][]*rpc.FrameRequest
}

// NewServer starts a server that is stopped when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		lis:      bufconn.Listen(bufSize),
		handlers: make(map[string]Handler),
		calls:    make(map[string]int),
		requests: make(map[string][]*rpc.FrameRequest),
	}
	s.srv = grpc.NewServer(
		grpc.ForceServerCodec(rpc.Codec{}),
		grpc.UnknownServiceHandler(s.dispatch),
	)
	go func() { _ = s.srv.Serve(s.lis) }()
	t.Cleanup(s.Stop)
	return s
}

// Stop terminates the server and all open calls. It is safe to call twice.
func (s *Server) Stop() {
	s.srv.Stop()
}

// Handle registers h for a backend's default method.
func (s *Server) Handle(backend string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[rpc.DefaultMethods[backend]] = h
}

// Calls is the number of calls the backend's method received.
func (s *Server) Calls(backend string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[rpc.DefaultMethods[backend]]
}

// Requests returns every request message the backend's method received.
func (s *Server) Requests(backend string) []*rpc.FrameRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*rpc.FrameRequest(nil), s.requests[rpc.DefaultMethods[backend]]...)
}

func (s *Server) record(method string, req *rpc.FrameRequest) {
	s.mu.Lock()
	s.requests[method] = append(s.requests[method], req)
	s.mu.Unlock()
}

func (s *Server) dispatch(_ any, ss grpc.ServerStream) error {
	method, ok := grpc.MethodFromServerStream(ss)
	if !ok {
		return status.Error(codes.Internal, "no method in stream")
	}
	s.mu.Lock()
	h, ok := s.handlers[method]
	s.calls[method]++
	s.mu.Unlock()
	if !ok {
		return status.Errorf(codes.Unimplemented, "method %s not scripted", method)
	}
	return h(&Stream{ServerStream: &recordingStream{ServerStream: ss, method: method, srv: s}})
}

type recordingStream struct {
	grpc.ServerStream
	method string
	srv    *Server
}

func (r *recordingStream) RecvMsg(m any) error {
	if err := r.ServerStream.RecvMsg(m); err != nil {
		return err
	}
	if req, ok := m.(*rpc.FrameRequest); ok {
		cp := *req
		r.srv.record(r.method, &cp)
	}
	return nil
}

// DialOptions route any dial to this server, whatever the target address.
func (s *Server) DialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return s.lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
}

// Pool returns a ConnPool whose backends all dial this server. The pool is
// closed when the test ends.
func (s *Server) Pool(t testing.TB, backends ...string) *rpc.ConnPool {
	t.Helper()
	list := make([]rpc.Backend, 0, len(backends))
	for _, b := range backends {
		list = append(list, rpc.Backend{Name: b, Address: "passthrough:///bufnet"})
	}
	pool := rpc.NewConnPool(list, rpc.WithDialOptions(s.DialOptions()...))
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

// DrainFrames reads requests until the terminal frame or client close and
// returns the number of data frames seen.
func DrainFrames(s *Stream) (int, error) {
	n := 0
	for {
		req, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if req.IsFinal {
			return n, nil
		}
		n++
	}
}

// EchoN drains all frames, then sends n chunks and closes the call.
func EchoN(n int) Handler {
	return func(s *Stream) error {
		if _, err := DrainFrames(s); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := s.Send([]byte(fmt.Sprintf("chunk-%d", i))); err != nil {
				return err
			}
		}
		return nil
	}
}

// EchoFrames answers every data frame with one chunk as soon as it arrives.
func EchoFrames() Handler {
	return func(s *Stream) error {
		for {
			req, err := s.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			if req.IsFinal {
				return nil
			}
			if err := s.Send(req.Data); err != nil {
				return err
			}
		}
	}
}

// EchoVideoID drains all frames, then answers with the video id the client
// tagged them with.
func EchoVideoID() Handler {
	return func(s *Stream) error {
		var id string
		for {
			req, err := s.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			id = req.VideoID
			if req.IsFinal {
				break
			}
		}
		return s.Send([]byte(id))
	}
}

// FailAfter sends k chunks while frames arrive, then aborts the call with code.
func FailAfter(k int, code codes.Code) Handler {
	return func(s *Stream) error {
		for i := 0; i < k; i++ {
			if _, err := s.Recv(); err != nil {
				return err
			}
			if err := s.Send([]byte(fmt.Sprintf("partial-%d", i))); err != nil {
				return err
			}
		}
		return status.Errorf(code, "backend failed after %d chunks", k)
	}
}
