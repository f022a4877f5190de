// Package gateway serves the newline-delimited JSON-RPC 2.0 control surface
// over a local unix socket (or any stream, for stdio use). Each connection
// is handled on its own goroutine; responses on one connection are written
// in request order.
package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"

	"github.com/zulandar/switchboard/internal/bus"
	"github.com/zulandar/switchboard/internal/relay"
	"github.com/zulandar/switchboard/internal/tmux"
)

// maxLineBytes bounds one request line. Payloads are small JSON maps; a
// megabyte is far beyond any legitimate request.
const maxLineBytes = 1 << 20

// Server dispatches JSON-RPC requests to the bus and session controller.
type Server struct {
	bus        *bus.Bus
	controller tmux.Controller
	relay      *relay.Relay
	locks      sessionLocks
}

// Opts holds parameters for creating a Server.
type Opts struct {
	Bus        *bus.Bus
	Controller tmux.Controller
	Relay      *relay.Relay // nil disables relaying
}

// New creates a Server.
func New(opts Opts) (*Server, error) {
	if opts.Bus == nil {
		return nil, fmt.Errorf("gateway: bus is required")
	}
	if opts.Controller == nil {
		return nil, fmt.Errorf("gateway: controller is required")
	}
	return &Server{
		bus:        opts.Bus,
		controller: opts.Controller,
		relay:      opts.Relay,
	}, nil
}

// Serve listens on a unix socket at path and serves connections until ctx
// is cancelled. A stale socket file from a previous run is removed first.
func (s *Server) Serve(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("gateway: remove stale socket %s: %w", path, err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s: %w", path, err)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	defer os.Remove(path)

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("gateway: accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()

			// Close the connection on shutdown so a read blocked in
			// ServeConn unwinds and wg.Wait can finish.
			done := make(chan struct{})
			defer close(done)
			go func() {
				select {
				case <-ctx.Done():
					conn.Close()
				case <-done:
				}
			}()

			if err := s.ServeConn(ctx, conn, conn); err != nil && ctx.Err() == nil {
				// A broken connection ends only that connection.
				log.Printf("gateway: connection: %v", err)
			}
		}()
	}
}

// ServeConn processes requests from r and writes responses to w until r
// reaches EOF or ctx is cancelled. One malformed line yields a parse-error
// response and the connection stays usable; only I/O failures end the
// connection.
func (s *Server) ServeConn(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	encoder := json.NewEncoder(w)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := s.handleLine(ctx, line)
		if err := encoder.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read: %w", err)
	}
	return nil
}

// handleLine turns one request line into one response.
func (s *Server) handleLine(ctx context.Context, line []byte) response {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		return errorResponse(nullID, codeParseError, "Parse error")
	}

	// The original clients omit the jsonrpc member; only an explicit wrong
	// version is rejected.
	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		return errorResponse(req.ID, codeInvalidRequest, "unsupported JSON-RPC version")
	}
	if req.Method == "" {
		return errorResponse(req.ID, codeInvalidRequest, "method is required")
	}

	result, rpcErr := s.dispatch(ctx, req.Method, req.Params)
	if rpcErr != nil {
		return errorResponse(req.ID, rpcErr.Code, rpcErr.Message)
	}
	return successResponse(req.ID, result)
}

// sessionLocks serializes mutating controller calls per target session so
// concurrent clients cannot interleave keystrokes into one window. Calls to
// different sessions proceed in parallel.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// acquire locks the named session and returns the unlock func.
func (l *sessionLocks) acquire(session string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[session]
	if !ok {
		m = &sync.Mutex{}
		l.locks[session] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
