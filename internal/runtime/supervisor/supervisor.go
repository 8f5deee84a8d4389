// Package supervisor runs the daemon's background goroutines under one
// context: named for logging, panic-safe, and waitable on shutdown.
package supervisor

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"taskmgr/pkg/logx"
)

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log         logx.Logger
	cancelOnErr bool

	firstErr atomic.Value // stores error
	wg       sync.WaitGroup

	started atomic.Uint64
	active  atomic.Int64
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError cancels the supervisor context on the first non-nil
// error from any goroutine.
func WithCancelOnError() Option {
	return func(s *Supervisor) { s.cancelOnErr = true }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{ctx: ctx, cancel: cancel, log: logx.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel stops the shared context without waiting.
func (s *Supervisor) Cancel() { s.cancel() }

// Err returns the first error reported by any goroutine.
func (s *Supervisor) Err() error {
	if v := s.firstErr.Load(); v != nil {
		if err, ok := v.(error); ok {
			return err
		}
	}
	return nil
}

// Go runs fn under the supervisor context. A panic is logged and recorded
// as the goroutine's error, never allowed to crash the daemon.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	s.started.Add(1)
	s.active.Add(1)

	go func() {
		start := time.Now()
		defer s.wg.Done()
		defer s.active.Add(-1)

		var err error
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = errors.Join(err, errorFromPanic(r))
					s.log.Error("panic in supervised goroutine",
						logx.String("name", name),
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
				}
			}()
			err = fn(s.ctx)
		}()

		if err != nil && !errors.Is(err, context.Canceled) {
			s.firstErr.CompareAndSwap(nil, err)
			s.log.Error("supervised goroutine exited with error",
				logx.String("name", name), logx.Err(err), logx.Duration("ran", time.Since(start)))
			if s.cancelOnErr {
				s.cancel()
			}
			return
		}
		s.log.Debug("supervised goroutine exited",
			logx.String("name", name), logx.Duration("ran", time.Since(start)))
	}()
}

// Stop cancels the context and waits for all goroutines, up to the given
// timeout. It reports whether everything exited in time.
func (s *Supervisor) Stop(timeout time.Duration) bool {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		s.log.Warn("supervised goroutines did not exit before timeout",
			logx.Int64("active", s.active.Load()))
		return false
	}
}

func errorFromPanic(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errors.New("panic in goroutine")
}
