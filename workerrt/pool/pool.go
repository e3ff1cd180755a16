// Package pool is an in-process, bounded-concurrency implementation of
// workerrt.Runtime. Handlers are registered by (module, method) name and run
// inside the pool's goroutines; panics and errors are both normalized to
// *errs.WorkerException, as an out-of-process worker runtime would report a
// crashed invocation back to its caller.
//
// Grounded on the teacher's worker.Handler type and worker.MockShellHandler,
// generalized from a single per-Worker handler to a (module, method) lookup
// table shared by all dispatcher types.
package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/taskengine/backgroundtask/errs"
)

// Func is a registered worker function. The first argument is always the
// engine clone data (possibly nil); the second, if present, is the task
// payload.
type Func func(ctx context.Context, args ...any) (any, error)

// Pool is a bounded-concurrency in-process Runtime.
type Pool struct {
	mu       sync.RWMutex
	handlers map[string]Func
	sem      chan struct{}
}

// New returns a Pool that allows at most concurrency simultaneous
// in-flight Exec calls. concurrency <= 0 means unbounded.
func New(concurrency int) *Pool {
	p := &Pool{handlers: make(map[string]Func)}
	if concurrency > 0 {
		p.sem = make(chan struct{}, concurrency)
	}
	return p
}

// Register binds a (module, method) pair to fn.
func (p *Pool) Register(module, method string, fn Func) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[key(module, method)] = fn
}

// Exec runs the registered (module, method) handler in a pool goroutine and
// waits for it to finish or ctx to be cancelled. A panic inside fn is
// recovered and reported as a *errs.WorkerException, mirroring how an
// out-of-process worker reports a crashed invocation.
func (p *Pool) Exec(ctx context.Context, module, method string, args ...any) (any, error) {
	p.mu.RLock()
	fn, ok := p.handlers[key(module, method)]
	p.mu.RUnlock()
	if !ok {
		return nil, errs.NewWorkerException(fmt.Errorf("no handler registered for %s.%s", module, method))
	}

	if p.sem != nil {
		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: errs.NewWorkerException(fmt.Errorf("panic: %v", r))}
			}
		}()
		res, err := fn(ctx, args...)
		if err != nil {
			done <- outcome{err: errs.NewWorkerException(err)}
			return
		}
		done <- outcome{result: res}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func key(module, method string) string { return module + "." + method }
