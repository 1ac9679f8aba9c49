package executor

import (
	"context"
	"fmt"
	"time"
)

// timeoutGrace is how long a future waits for a runner to report after its deadline
// before resolving as a timeout on the runner's behalf.
const timeoutGrace = 2 * time.Second

// Future is the pending outcome of an asynchronous Run.
type Future struct {
	done   chan struct{}
	result Result
}

// Go starts req on r in a new goroutine. The future resolves with the runner's result, or with
// a timeout failure if the runner overruns req.Timeout. Runner panics resolve as failures.
func Go(ctx context.Context, r Runner, req Request) *Future {
	if req.Timeout <= 0 {
		req.Timeout = DefaultTimeout
	}
	f := &Future{done: make(chan struct{})}

	go func() {
		defer close(f.done)

		runCtx, cancel := context.WithTimeout(ctx, req.Timeout)
		defer cancel()

		ch := make(chan Result, 1)
		start := time.Now()
		go func() { ch <- safeRun(runCtx, r, req) }()

		select {
		case f.result = <-ch:
			return
		case <-runCtx.Done():
		}

		grace := time.NewTimer(timeoutGrace)
		defer grace.Stop()
		select {
		case f.result = <-ch:
		case <-grace.C:
			f.result = failure(fmt.Errorf("%w after %s: %s", ErrCommandTimeout, req.Timeout, req.Command), time.Since(start))
		}
	}()
	return f
}

func safeRun(ctx context.Context, r Runner, req Request) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = failure(fmt.Errorf("runner panic: %v", p), 0)
		}
	}()
	return r.Run(ctx, req)
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result blocks until the future resolves.
func (f *Future) Result() Result {
	<-f.done
	return f.result
}

// Await waits for the result or for ctx to end.
func (f *Future) Await(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
