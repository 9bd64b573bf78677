package pathgen

import (
	"context"
	"time"

	"github.com/benbjohnson/pathgen/compile"
	"github.com/benbjohnson/pathgen/vm"
	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"
)

// Invocation is the result of a single traced call.
type Invocation struct {
	Args    []vm.Value
	Record  *TraceRecord
	Result  vm.Value
	Err     error
	Elapsed time.Duration
}

// TimedOut returns true if the call was abandoned or ran out of steps.
func (inv *Invocation) TimedOut() bool {
	return errors.Is(inv.Err, ErrTimeout) || errors.Is(inv.Err, vm.ErrStepLimit)
}

// Runner executes traced calls on a bounded worker pool with a hard
// wall-clock timeout per call.
type Runner struct {
	pool   *ants.Pool
	tracer *Tracer

	// Maximum duration of a single call. Zero disables the timeout.
	Timeout time.Duration
}

// NewRunner returns a runner backed by a pool of n workers.
func NewRunner(tracer *Tracer, n int, timeout time.Duration) (*Runner, error) {
	if n <= 0 {
		n = 1
	}
	pool, err := ants.NewPool(n)
	if err != nil {
		return nil, errors.Wrap(err, "new worker pool")
	}
	return &Runner{pool: pool, tracer: tracer, Timeout: timeout}, nil
}

// Close releases the worker pool.
func (r *Runner) Close() error {
	r.pool.Release()
	return nil
}

// Run calls fn with args on a worker and waits for the result. If the call
// does not finish in time its context is cancelled and the invocation is
// returned with ErrTimeout; the worker is not waited on.
//
// Returns an error only if the parent context is done or the task could not
// be submitted.
func (r *Runner) Run(ctx context.Context, fn *compile.Func, args []vm.Value) (*Invocation, error) {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, r.Timeout)
	}
	defer cancel()

	start := time.Now()
	ch := make(chan *Invocation, 1)
	if err := r.pool.Submit(func() {
		rec, result, err := r.tracer.Trace(callCtx, fn, args)
		ch <- &Invocation{Args: args, Record: rec, Result: result, Err: err, Elapsed: time.Since(start)}
	}); err != nil {
		return nil, errors.Wrap(err, "submit")
	}

	select {
	case inv := <-ch:
		if errors.Is(inv.Err, context.DeadlineExceeded) && ctx.Err() == nil {
			inv.Err = errors.Wrapf(ErrTimeout, "after %s", r.Timeout)
		} else if err := ctx.Err(); err != nil {
			return nil, err
		}
		return inv, nil
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &Invocation{
			Args:    args,
			Record:  &TraceRecord{},
			Err:     errors.Wrapf(ErrTimeout, "after %s", r.Timeout),
			Elapsed: time.Since(start),
		}, nil
	}
}
