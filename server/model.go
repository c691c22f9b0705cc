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

// Package server wires the reactor, transport, registry and ringbuf
// packages into the embeddable TCP/TLS server framework described by the
// original vessel.c: a fixed worker pool drains readiness events from a
// single epoll instance shared with a one-shot listen socket, dispatching
// accept/read/write per the same state table as the source (Listening,
// ReadReady, WriteReady), and tears every resource down in the same order
// on shutdown (clients, then listener, then reactor).
package server

import (
	"context"
	"crypto/tls"
	"net"
	"os"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nabbar/vessel/config"
	"github.com/nabbar/vessel/logger"
	"github.com/nabbar/vessel/reactor"
	"github.com/nabbar/vessel/registry"
	"github.com/nabbar/vessel/ringbuf"
	"github.com/nabbar/vessel/transport"

	liberr "github.com/nabbar/vessel/errors"
)

// Reply is the bytes an application handler emits for a connection,
// equivalent to vessel.h's struct reply.
type Reply struct {
	FD   int
	Data []byte
}

// Client is the per-connection record handed to application handlers,
// equivalent to vessel.h's struct client minus its three function-pointer
// slots: dispatch happens at the Server level instead, since Go already has
// an enclosing object to hang the behavior on (see DESIGN.md).
type Client struct {
	FD   int
	Conn net.Conn
	Addr string

	// Incoming holds the bytes staged by the framework's read handler
	// before ReqHandler is invoked for this readiness cycle.
	Incoming []byte

	// Reply is populated by ReqHandler and consumed by RepHandler, which
	// must call transport.SendAll itself - the framework only dispatches,
	// it does not perform I/O on the application's behalf.
	Reply Reply
}

// Handler is the application-supplied capability invoked on READ and WRITE
// readiness, matching spec's "(client) -> {0 ok, -1 error}" contract.
type Handler func(c *Client) error

// AcceptFunc is the optional override for the framework's default accept
// routine. It receives a Client whose Conn/Addr (and, if TLS is enabled,
// handshake) are already populated; it is responsible for registering the
// client with the reactor and registry (see (*Server).Register), mirroring
// vessel.h's acc_handler override point.
type AcceptFunc func(s *Server, c *Client) error

// Server runs the worker pool and reactor for one listening socket.
type Server struct {
	cfg config.Server

	reqHandler Handler
	repHandler Handler
	acceptFn   AcceptFunc

	log         logger.FuncLog
	chunkSize   int
	pollTimeout time.Duration

	lifecycle interface {
		Start(ctx context.Context) error
		Stop(ctx context.Context) error
		Restart(ctx context.Context) error
		IsRunning() bool
		Uptime() time.Duration
		ErrorsLast() error
		ErrorsList() []error
	}

	mu         sync.Mutex
	rx         *reactor.Reactor
	listener   net.Listener
	listenFile *os.File
	listenFD   int
	clients    *registry.Registry[*Client]
}

// Listener returns the server's bound listener once Start has run, or nil
// before that.
func (s *Server) Listener() net.Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener
}

// IsRunning reports whether the worker pool is currently active.
func (s *Server) IsRunning() bool {
	return s.lifecycle.IsRunning()
}

// OpenConnections reports the number of currently registered clients.
func (s *Server) OpenConnections() int {
	return s.clients.Len()
}

// ErrorsLast returns the most recent error recorded by the lifecycle runner,
// such as a bind/listen failure inside run.
func (s *Server) ErrorsLast() error {
	return s.lifecycle.ErrorsLast()
}

// ErrorsList returns every error recorded by the lifecycle runner since the
// last Start.
func (s *Server) ErrorsList() []error {
	return s.lifecycle.ErrorsList()
}

// Start launches run in the background and returns once it has been
// scheduled; it does not wait for the worker pool to exit. Listener()
// becomes non-nil once the bind/listen/reactor setup inside run completes.
// Equivalent to start_server, minus the original's join - that happens on
// Stop instead. Any setup failure is available via ErrorsLast/ErrorsList.
func (s *Server) Start(ctx context.Context) error {
	return s.lifecycle.Start(ctx)
}

// Stop signals every worker to return and waits for the worker pool and
// resource teardown to complete. Equivalent to stop_server.
func (s *Server) Stop(ctx context.Context) error {
	return s.lifecycle.Stop(ctx)
}

func (s *Server) logError(msg string, err error) {
	if s.log == nil || err == nil {
		return
	}
	if l := s.log(); l != nil {
		l.Error(msg, err)
	}
}

func (s *Server) run(ctx context.Context) error {
	ln, err := s.cfg.Listen()
	if err != nil {
		return ErrorListenFailed.Error(err)
	}

	fl, ok := ln.(interface{ File() (*os.File, error) })
	if !ok {
		_ = ln.Close()
		return ErrorListenFailed.Error(nil)
	}

	f, err := fl.File()
	if err != nil {
		_ = ln.Close()
		return ErrorListenFailed.Error(err)
	}

	listenFD := int(f.Fd())
	if err = unix.SetNonblock(listenFD, true); err != nil {
		_ = f.Close()
		_ = ln.Close()
		return ErrorListenFailed.Error(err)
	}

	rx, err := reactor.New()
	if err != nil {
		_ = f.Close()
		_ = ln.Close()
		return err
	}

	if err = rx.Register(listenFD, nil); err != nil {
		_ = rx.Close()
		_ = f.Close()
		_ = ln.Close()
		return err
	}

	workers := s.cfg.EpollWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	s.mu.Lock()
	s.listener = ln
	s.listenFile = f
	s.listenFD = listenFD
	s.rx = rx
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = rx.SignalN(workers)
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker()
		}()
	}
	wg.Wait()

	return nil
}

// shutdown releases resources in the order vessel.c's start_server tail
// does: every client connection first, then the listener, then the
// reactor's own descriptors.
func (s *Server) shutdown(_ context.Context) error {
	s.mu.Lock()
	rx, ln, f := s.rx, s.listener, s.listenFile
	s.mu.Unlock()

	s.clients.Range(func(fd int, c *Client) bool {
		_ = c.Conn.Close()
		return true
	})

	if ln != nil {
		_ = ln.Close()
	}
	if f != nil {
		_ = f.Close()
	}
	if rx != nil {
		_ = rx.Close()
	}

	return nil
}

func (s *Server) worker() {
	for {
		events, err := s.rx.Wait(s.cfg.Events())
		if err != nil {
			s.logError("reactor wait failed", err)
			return
		}

		for _, ev := range events {
			if ev.Shutdown {
				return
			}

			if ev.FD == s.listenFD {
				s.acceptAll()
				if rerr := s.rx.Rearm(s.listenFD, reactor.Read, nil); rerr != nil {
					s.logError("rearm listen fd failed", rerr)
				}
				continue
			}

			client, gerr := s.clients.Get(ev.FD)
			if gerr != nil {
				continue
			}

			if ev.Error || ev.Hangup {
				s.dropClient(client)
				continue
			}

			if ev.Read {
				s.handleRead(client)
			} else if ev.Write {
				s.handleWrite(client)
			}
		}
	}
}

func (s *Server) acceptAll() {
	for {
		nfd, _, err := unix.Accept4(s.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			s.logError("accept failed", ErrorAcceptFailed.Error(err))
			return
		}

		conn, err := fdToConn(nfd)
		if err != nil {
			_ = unix.Close(nfd)
			s.logError("accept failed", ErrorAcceptFailed.Error(err))
			continue
		}

		addr := conn.RemoteAddr().String()

		if s.cfg.TLS.Enable {
			tc := tls.Server(conn, s.cfg.TLS.Config.TLS(s.cfg.TLS.ServerName))
			if hErr := tc.Handshake(); hErr != nil {
				s.logError("tls handshake failed", ErrorTLSHandshake.Error(hErr))
				_ = tc.Close()
				continue
			}
			conn = tc
		}

		client := &Client{FD: nfd, Conn: conn, Addr: addr}

		if s.acceptFn != nil {
			if aErr := s.acceptFn(s, client); aErr != nil {
				_ = conn.Close()
			}
			continue
		}

		if rErr := s.Register(client); rErr != nil {
			_ = conn.Close()
		}
	}
}

// Register adds client to the registry and arms it for READ in the
// reactor, the final two steps of the default accept routine - exposed so
// an AcceptFunc override can still perform them.
func (s *Server) Register(client *Client) liberr.Error {
	if err := s.clients.Add(client.FD, client); err != nil {
		return err
	}
	if err := s.rx.Register(client.FD, nil); err != nil {
		_ = s.clients.Remove(client.FD)
		return err
	}
	return nil
}

func (s *Server) dropClient(client *Client) {
	_ = s.rx.Remove(client.FD)
	_ = s.clients.Remove(client.FD)
	_ = client.Conn.Close()
}

// ringCapacityFactor sizes the per-cycle ring well above one read chunk:
// spec's "enlarge the buffer" strategy for the ring-full case. Combined
// with transport.RecvAll capping each read to the ring's remaining room,
// a payload arriving as several chunkSize-sized reads within one
// edge-triggered cycle stages in full instead of tearing the connection
// down once the (now much larger) ring actually fills.
const ringCapacityFactor = 16

func (s *Server) handleRead(client *Client) {
	rb, _ := ringbuf.New(s.chunkSize * ringCapacityFactor)

	total, closed, err := transport.RecvAll(client.Conn, rb, s.chunkSize, s.pollTimeout)
	if closed {
		s.dropClient(client)
		return
	}
	if err != nil {
		s.logError("recv failed", err)
		s.dropClient(client)
		return
	}

	buf := make([]byte, total)
	rb.BulkPop(buf)
	client.Incoming = buf

	if err := s.reqHandler(client); err != nil {
		s.logError("req handler failed", err)
		s.dropClient(client)
		return
	}

	if err := s.rx.Rearm(client.FD, reactor.Write, nil); err != nil {
		s.logError("rearm for write failed", err)
		s.dropClient(client)
	}
}

func (s *Server) handleWrite(client *Client) {
	if err := s.repHandler(client); err != nil {
		s.logError("rep handler failed", err)
		s.dropClient(client)
		return
	}

	if err := s.rx.Rearm(client.FD, reactor.Read, nil); err != nil {
		s.logError("rearm for read failed", err)
		s.dropClient(client)
	}
}

func fdToConn(fd int) (net.Conn, error) {
	f := os.NewFile(uintptr(fd), "")
	conn, err := net.FileConn(f)
	_ = f.Close()
	if err != nil {
		return nil, err
	}
	return conn, nil
}
