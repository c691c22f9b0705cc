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

// Package transport drains a net.Conn (plain or TLS, both implement the same
// interface) the way the original sendall/recvall pair drained a raw or SSL
// socket: best-effort, non-blocking, stopping as soon as the peer would
// block rather than waiting for the whole payload to move in one call.
//
// Go has no errno to inspect after a short write or read, so would-block is
// observed the idiomatic way instead: a short deadline is armed before the
// attempt, and a timed-out net.Error is treated exactly like the original's
// EAGAIN/EWOULDBLOCK branch - not an error, just "nothing more right now".
package transport

import (
	"io"
	"net"
	"time"

	"github.com/nabbar/vessel/ringbuf"

	liberr "github.com/nabbar/vessel/errors"
)

// DefaultPollTimeout bounds a single SendAll/RecvAll attempt, mirroring the
// one-shot readiness window the reactor hands a worker per wake-up.
const DefaultPollTimeout = 50 * time.Millisecond

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// SendAll writes buf to conn, stopping either when every byte has been
// written or the peer would block within pollTimeout. A partial write is
// not an error: sent reports exactly how many bytes made it out so the
// caller can stage the remainder for the next writable notification.
func SendAll(conn net.Conn, buf []byte, pollTimeout time.Duration) (sent int, err liberr.Error) {
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}

	total := 0
	for total < len(buf) {
		if e := conn.SetWriteDeadline(time.Now().Add(pollTimeout)); e != nil {
			return total, ErrorSend.Error(e)
		}

		n, e := conn.Write(buf[total:])
		total += n

		if e != nil {
			if isTimeout(e) {
				break
			}
			return total, ErrorSend.Error(e)
		}
	}

	return total, nil
}

// RecvAll reads from conn into chunkSize pieces and bulk-stages them into rb
// until the peer would block within pollTimeout, the peer closes the
// connection, or rb fills up. closed reports a graceful peer close (read
// returning io.EOF), which the caller should treat the way the original
// treated recv() returning 0: drop the client.
//
// A full ring is not a transport error: per the "stop reading until
// drained" strategy the source's own FIXME calls for, RecvAll simply stops
// pulling more bytes off the wire and returns what it staged so the caller
// can drain rb and call RecvAll again on the next readiness notification,
// rather than tearing down an otherwise-healthy connection.
func RecvAll(conn net.Conn, rb *ringbuf.RingBuf, chunkSize int, pollTimeout time.Duration) (total int, closed bool, err liberr.Error) {
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	if chunkSize <= 0 {
		chunkSize = 256
	}

	buf := make([]byte, chunkSize)

	for {
		room := rb.Capacity() - rb.Size()
		if room <= 0 {
			break
		}
		want := chunkSize
		if room < want {
			want = room
		}

		if e := conn.SetReadDeadline(time.Now().Add(pollTimeout)); e != nil {
			return total, false, ErrorRecv.Error(e)
		}

		n, e := conn.Read(buf[:want])

		if n > 0 {
			pushed, _ := rb.BulkPush(buf[:n])
			total += pushed
		}

		if e != nil {
			if isTimeout(e) {
				break
			}
			if e == io.EOF {
				return total, true, nil
			}
			return total, false, ErrorRecv.Error(e)
		}

		if n == 0 {
			break
		}
	}

	return total, false, nil
}
