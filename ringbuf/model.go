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

// Package ringbuf implements a fixed-capacity single-producer,
// single-consumer byte queue used to stage partially read socket data
// between the reactor's read handler and the application's decode step.
package ringbuf

import (
	liberr "github.com/nabbar/vessel/errors"
)

// RingBuf is a fixed-capacity circular byte queue. The zero value is not
// usable; create one with New.
type RingBuf struct {
	buf  []byte
	head int
	tail int
	full bool
}

// New attaches a ring buffer to a byte region of the given capacity. The
// region is allocated internally; use NewFromSlice to reuse caller memory.
func New(capacity int) (*RingBuf, liberr.Error) {
	if capacity <= 0 {
		return nil, ErrorInvalidCapacity.Error(nil)
	}
	return NewFromSlice(make([]byte, capacity)), nil
}

// NewFromSlice attaches a ring buffer to an existing byte region, whose
// length becomes the buffer's capacity. The region is owned by the
// returned RingBuf for the remainder of its lifetime.
func NewFromSlice(region []byte) *RingBuf {
	r := &RingBuf{buf: region}
	r.Reset()
	return r
}

// Reset makes tail == head and clears the full flag, discarding any
// staged bytes without zeroing the backing region.
func (r *RingBuf) Reset() {
	r.head = 0
	r.tail = 0
	r.full = false
}

// Capacity returns the byte region size the buffer was created with.
func (r *RingBuf) Capacity() int {
	return len(r.buf)
}

// Full reports whether the buffer currently holds Capacity() bytes.
func (r *RingBuf) Full() bool {
	return r.full
}

// Empty reports whether the buffer currently holds zero bytes.
func (r *RingBuf) Empty() bool {
	return !r.full && r.head == r.tail
}

// Size returns the number of bytes currently staged in the buffer.
func (r *RingBuf) Size() int {
	if r.full {
		return len(r.buf)
	}
	if r.head >= r.tail {
		return r.head - r.tail
	}
	return len(r.buf) + r.head - r.tail
}

func (r *RingBuf) advance() {
	if r.full {
		r.tail = (r.tail + 1) % len(r.buf)
	}
	r.head = (r.head + 1) % len(r.buf)
	r.full = r.head == r.tail
}

func (r *RingBuf) retreat() {
	r.full = false
	r.tail = (r.tail + 1) % len(r.buf)
}

// Push writes a single byte at head and advances it. It fails, without
// dropping the byte from the caller's perspective, when the buffer is full.
func (r *RingBuf) Push(b byte) liberr.Error {
	if r.full {
		return ErrorBufferFull.Error(nil)
	}
	r.buf[r.head] = b
	r.advance()
	return nil
}

// BulkPush pushes src in order, stopping at the first Push failure. Bytes
// pushed before the failure remain in the buffer; the caller must size the
// region larger than any single decoded unit to avoid losing a partial push.
func (r *RingBuf) BulkPush(src []byte) (int, liberr.Error) {
	for i, b := range src {
		if err := r.Push(b); err != nil {
			return i, err
		}
	}
	return len(src), nil
}

// Pop reads the byte at tail and advances it. It fails when the buffer is
// empty.
func (r *RingBuf) Pop() (byte, liberr.Error) {
	if r.Empty() {
		return 0, ErrorBufferEmpty.Error(nil)
	}
	b := r.buf[r.tail]
	r.retreat()
	return b, nil
}

// BulkPop pops up to min(len(dst), Size()) bytes in order into dst and
// returns how many bytes were written.
func (r *RingBuf) BulkPop(dst []byte) int {
	n := 0
	for n < len(dst) && !r.Empty() {
		b, err := r.Pop()
		if err != nil {
			break
		}
		dst[n] = b
		n++
	}
	return n
}
