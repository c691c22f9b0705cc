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

// Package registry tracks the connections a server currently holds open.
// The original vessel kept a single global singly-linked list
// (instance.clients) appended to from accept_connection and walked linearly
// by stop_server to shut every client down; every worker thread mutated it
// through the same pointer without any lock. Here it is a fixed concurrent
// map keyed by file descriptor, safe for simultaneous Add/Remove/Range calls
// from every worker goroutine.
package registry

import (
	"sync"

	liberr "github.com/nabbar/vessel/errors"
)

// Registry is a concurrency-safe table of open connections, keyed by file
// descriptor. The zero value is not usable; create one with New.
type Registry[T any] struct {
	mu    sync.RWMutex
	items map[int]T
}

// New returns an empty, ready-to-use Registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{items: make(map[int]T)}
}

// Add registers item under fd. It fails if fd is already registered, which
// would otherwise silently leak the previous entry.
func (r *Registry[T]) Add(fd int, item T) liberr.Error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[fd]; ok {
		return ErrorAlreadyRegistered.Error(nil)
	}
	r.items[fd] = item
	return nil
}

// Remove deregisters fd, returning ErrorNotFound if it was not present.
func (r *Registry[T]) Remove(fd int) liberr.Error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[fd]; !ok {
		return ErrorNotFound.Error(nil)
	}
	delete(r.items, fd)
	return nil
}

// Get returns the item registered under fd, or ErrorNotFound.
func (r *Registry[T]) Get(fd int) (T, liberr.Error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[fd]
	if !ok {
		var zero T
		return zero, ErrorNotFound.Error(nil)
	}
	return item, nil
}

// Len reports the number of currently registered connections.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.items)
}

// Range calls fn for every registered entry, stopping early if fn returns
// false. fn must not call back into the Registry: Range holds a read lock
// for its entire iteration.
func (r *Registry[T]) Range(fn func(fd int, item T) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for fd, item := range r.items {
		if !fn(fd, item) {
			return
		}
	}
}
