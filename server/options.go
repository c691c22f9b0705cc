/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package server

import (
	"time"

	"github.com/nabbar/vessel/config"
	"github.com/nabbar/vessel/logger"
	"github.com/nabbar/vessel/registry"
	"github.com/nabbar/vessel/runner/startStop"
)

const (
	// DefaultChunkSize is the scratch buffer size RecvAll reads into per
	// readiness cycle. The original's own read buffer (BUFSIZE,
	// networking.h) is 256 bytes; this default is larger to cut down on
	// epoll round-trips for Go's socket stack, combined with
	// ringCapacityFactor so a single edge-triggered cycle can still stage
	// several chunks before the ring fills.
	DefaultChunkSize = 4096

	// DefaultPollTimeout bounds how long a single read or write attempt
	// waits before being treated as would-block, per transport.DefaultPollTimeout.
	DefaultPollTimeout = 50 * time.Millisecond
)

// Option configures optional Server behavior at construction time.
type Option func(*Server)

// WithAcceptHandler overrides the framework's default accept routine
// (fdToConn + optional TLS handshake + Register) with a caller-supplied
// one, mirroring vessel.h's acc_handler override point. The override is a
// construction-time option rather than a config.Server field because
// config must not import server's Client/Handler types (see DESIGN.md).
func WithAcceptHandler(fn AcceptFunc) Option {
	return func(s *Server) { s.acceptFn = fn }
}

// WithLogger attaches a logger.FuncLog used to report non-fatal internal
// errors (rearm failures, accept failures, handler errors) that would
// otherwise be silently dropped.
func WithLogger(log logger.FuncLog) Option {
	return func(s *Server) { s.log = log }
}

// WithChunkSize overrides DefaultChunkSize for the per-cycle read scratch
// buffer.
func WithChunkSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithPollTimeout overrides DefaultPollTimeout for transport reads/writes.
func WithPollTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pollTimeout = d
		}
	}
}

// New builds a Server bound to cfg, dispatching READ readiness to
// reqHandler and WRITE readiness to repHandler. Both handlers are
// mandatory: a server with no request or reply capability cannot serve
// anything, matching vessel.h's requirement that req_handler/rep_handler
// always be set.
func New(cfg config.Server, reqHandler, repHandler Handler, opts ...Option) (*Server, error) {
	if reqHandler == nil || repHandler == nil {
		return nil, ErrorInvalidHandler.Error(nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, ErrorInvalidConfig.Error(err)
	}

	s := &Server{
		cfg:         cfg,
		reqHandler:  reqHandler,
		repHandler:  repHandler,
		chunkSize:   DefaultChunkSize,
		pollTimeout: DefaultPollTimeout,
		clients:     registry.New[*Client](),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.lifecycle = startStop.New(s.run, s.shutdown)

	return s, nil
}
