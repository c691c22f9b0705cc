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

// Package config describes the knobs a vessel server is started with:
// bind address, epoll sizing, and optional TLS termination. It mirrors the
// original Config/server_conf pair from vessel.h, minus the three handler
// fields: req_handler and rep_handler became parameters of server.New and
// acc_handler the server.WithAcceptHandler option, to avoid an import cycle
// between config and the package that defines the handler and Client types.
package config

import (
	"context"
	"net"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sys/unix"

	"github.com/nabbar/vessel/certificates"
	libptc "github.com/nabbar/vessel/network/protocol"
)

// DefaultEpollEvents is used when EpollEvents <= 0, matching vessel.h's
// epoll_events == -1 fallback.
const DefaultEpollEvents = 64

var validate = validator.New()

// TLS groups the optional transport encryption settings for a Server.
type TLS struct {
	// Enable mirrors the original use_ssl flag.
	Enable bool
	// Config supplies the certificate material and cipher/version policy.
	// Required when Enable is true.
	Config certificates.TLSConfig
	// ServerName is passed to Config.TLS(serverName) to select an SNI-bound
	// certificate; empty selects the default certificate.
	ServerName string
}

// Server holds the process-wide configuration a vessel server is started
// with, equivalent to vessel.h's Config and the long-lived parts of its
// server_conf global (worker count, max events, TLS material) - minus the
// handler function pointers, now parameters of server.New.
type Server struct {
	// Network selects the listen family (tcp/tcp4/tcp6/unix); only
	// stream-capable protocols are valid for a vessel server.
	Network libptc.NetworkProtocol `validate:"required"`
	// Address is the bind target, e.g. "127.0.0.1:4040" or a unix socket path.
	Address string `validate:"required"`
	// EpollEvents bounds how many readiness events a single Wait call
	// drains; <= 0 resolves to DefaultEpollEvents.
	EpollEvents int
	// EpollWorkers is the worker goroutine count; <= 0 resolves to
	// runtime.NumCPU(), mirroring vessel.c's get_nprocs() fallback.
	EpollWorkers int
	// TLS carries the optional encryption settings.
	TLS TLS
}

func isStreamNetwork(n libptc.NetworkProtocol) bool {
	switch n {
	case libptc.NetworkTCP, libptc.NetworkTCP4, libptc.NetworkTCP6, libptc.NetworkUnix:
		return true
	default:
		return false
	}
}

// Validate checks structural constraints that struct tags cannot express:
// the network family must be stream-capable, and TLS, if enabled, must
// carry a usable configuration.
func (s Server) Validate() error {
	if err := validate.Struct(s); err != nil {
		return ErrorValidation.Error(err)
	}

	if !isStreamNetwork(s.Network) {
		return ErrorInvalidNetwork.Error(nil)
	}

	if s.Address == "" {
		return ErrorInvalidAddress.Error(nil)
	}

	if s.TLS.Enable && s.TLS.Config == nil {
		return ErrorInvalidTLSConfig.Error(nil)
	}

	return nil
}

// Events returns EpollEvents or DefaultEpollEvents when unset.
func (s Server) Events() int {
	if s.EpollEvents <= 0 {
		return DefaultEpollEvents
	}
	return s.EpollEvents
}

// Listen opens the configured listener in non-blocking mode, equivalent to
// vessel.h's make_listen + set_nonblocking pair. The listening socket is
// opened with SO_REUSEADDR and SO_REUSEPORT, matching networking.c's
// make_listen: `setsockopt(sfd, SOL_SOCKET, SO_REUSEPORT|SO_REUSEADDR, ...)`.
// Go's net.Listen already sets SO_REUSEADDR by default but never
// SO_REUSEPORT, so both are set explicitly here via a Control callback
// rather than relying on the default.
func (s Server) Listen() (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, _ string, c syscall.RawConn) error {
			// SO_REUSEPORT/SO_REUSEADDR are TCP/IP socket options; unix
			// domain listeners have no equivalent and reject them.
			if network != "tcp" && network != "tcp4" && network != "tcp6" {
				return nil
			}

			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if sockErr != nil {
					return
				}
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			}); err != nil {
				return err
			}
			return sockErr
		},
	}

	return lc.Listen(context.Background(), s.Network.String(), s.Address)
}
