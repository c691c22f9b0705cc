/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
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

// Package startStop provides a reusable goroutine lifecycle wrapper around a pair
// of start/stop functions, tracking running state, uptime and the errors they return.
package startStop

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// FuncStart is called in its own goroutine when Start is invoked. It is expected
// to block until the given context is cancelled (e.g. a reactor event loop or a
// server accept loop); returning earlier is treated as the runner having stopped.
type FuncStart func(ctx context.Context) error

// FuncStop is called synchronously by Stop/Restart to unwind whatever FuncStart
// is blocked on.
type FuncStop func(ctx context.Context) error

// StartStop wraps a start/stop function pair as a supervised, restartable task.
type StartStop interface {
	// Start launches the start function in a new goroutine, stopping any previous
	// instance first. It returns immediately; asynchronous errors are available
	// through ErrorsLast/ErrorsList.
	Start(ctx context.Context) error
	// Stop cancels the running instance and waits for the start function to
	// return before invoking the stop function. Safe to call when not running.
	Stop(ctx context.Context) error
	// Restart stops then starts the runner.
	Restart(ctx context.Context) error
	// IsRunning reports whether the start function is currently executing.
	IsRunning() bool
	// Uptime returns the duration since the current run started, or zero when
	// not running.
	Uptime() time.Duration
	// ErrorsLast returns the most recent error captured from start/stop.
	ErrorsLast() error
	// ErrorsList returns every error captured since the last Start call.
	ErrorsList() []error
}

type runner struct {
	mu sync.Mutex

	fctStart FuncStart
	fctStop  FuncStop

	running atomic.Bool
	started atomic.Value // time.Time

	cancel context.CancelFunc
	done   chan struct{}

	errMu sync.RWMutex
	errs  []error
}

// New creates a StartStop runner from the given start/stop function pair. Either
// function may be nil: calling Start/Stop without a valid function records an
// "invalid start/stop function" error instead of panicking.
func New(start FuncStart, stop FuncStop) StartStop {
	return &runner{
		fctStart: start,
		fctStop:  stop,
	}
}

func (r *runner) addError(err error) {
	if err == nil {
		return
	}
	r.errMu.Lock()
	defer r.errMu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *runner) resetErrors() {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	r.errs = nil
}

func (r *runner) ErrorsLast() error {
	r.errMu.RLock()
	defer r.errMu.RUnlock()
	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[len(r.errs)-1]
}

func (r *runner) ErrorsList() []error {
	r.errMu.RLock()
	defer r.errMu.RUnlock()
	out := make([]error, len(r.errs))
	copy(out, r.errs)
	return out
}

func (r *runner) IsRunning() bool {
	return r.running.Load()
}

func (r *runner) Uptime() time.Duration {
	if !r.running.Load() {
		return 0
	}
	if t, ok := r.started.Load().(time.Time); ok && !t.IsZero() {
		return time.Since(t)
	}
	return 0
}

func (r *runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked(ctx)
	r.resetErrors()

	cctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	r.cancel = cancel
	r.done = done

	if r.fctStart == nil {
		r.addError(fmt.Errorf("invalid start function"))
		cancel()
		close(done)
		return nil
	}

	r.started.Store(time.Now())
	r.running.Store(true)

	go func() {
		defer close(done)
		defer r.running.Store(false)
		defer cancel()
		defer func() {
			if p := recover(); p != nil {
				r.addError(fmt.Errorf("start function panicked: %v", p))
			}
		}()

		if err := r.fctStart(cctx); err != nil {
			r.addError(err)
		}
	}()

	return nil
}

func (r *runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked(ctx)
	return nil
}

// stopLocked cancels and waits for any in-flight start function, then invokes the
// stop function. Must be called with mu held.
func (r *runner) stopLocked(ctx context.Context) {
	cancel := r.cancel
	done := r.done

	r.cancel = nil
	r.done = nil

	if cancel == nil {
		return
	}

	cancel()
	if done != nil {
		<-done
	}
	r.running.Store(false)

	if r.fctStop == nil {
		r.addError(fmt.Errorf("invalid stop function"))
		return
	}

	func() {
		defer func() {
			if p := recover(); p != nil {
				r.addError(fmt.Errorf("stop function panicked: %v", p))
			}
		}()
		if err := r.fctStop(ctx); err != nil {
			r.addError(err)
		}
	}()
}

func (r *runner) Restart(ctx context.Context) error {
	if err := r.Stop(ctx); err != nil {
		return err
	}
	return r.Start(ctx)
}
