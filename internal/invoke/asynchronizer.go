// SPDX-License-Identifier: MPL-2.0

package invoke

import (
	"context"
	"fmt"
	"sync"

	"datagate/internal/notify"
	"datagate/pkg/operation"
)

// Asynchronizer adapts a backend that accepts only one unit of work per
// invocation, or only operates synchronously, to the uniform submission
// contract for a potentially multi-granule operation.
//
// Submit partitions the operation one sub-operation per granule and drives
// the wrapped invoker sequentially — one sub-invocation at a time, waiting
// for its completion before issuing the next, which is the whole point of
// the constraint. The sub-completions are aggregated into exactly one
// logical notification for the original operation: success only once every
// sub-invocation succeeded, failure as soon as one fails. After a failure
// the remaining sub-invocations still run, but their outcomes are discarded.
type Asynchronizer struct {
	base Invoker
}

// NewAsynchronizer wraps base with granule fan-out.
func NewAsynchronizer(base Invoker) *Asynchronizer {
	return &Asynchronizer{base: base}
}

// Name returns the invoker name.
func (a *Asynchronizer) Name() string {
	return a.base.Name() + " (asynchronized)"
}

// Submit fans the operation out and aggregates the results.
func (a *Asynchronizer) Submit(ctx *InvokeContext) error {
	if err := ctx.validate(); err != nil {
		return err
	}
	op := ctx.Operation

	subs := op.SplitGranules()
	if len(subs) == 1 && subs[0] == op {
		// Nothing to fan out; the base invoker handles the operation and
		// the caller's router directly.
		return a.base.Submit(ctx)
	}

	// The logical notification gate: no matter how many sub-invocations
	// run or race, the original completion address hears exactly once.
	var once sync.Once
	deliver := func(n notify.Notification) {
		once.Do(func() {
			if err := ctx.Router.Notify(ctx.Context, op, n); err != nil {
				ctx.Logger.Error("logical completion delivery failed",
					"operation", op.ID, "error", err)
			}
		})
	}

	failed := false
	for idx, sub := range subs {
		n, err := a.submitOne(ctx, sub)
		if err != nil {
			// A configuration defect, not a submission failure: the caller
			// layer reports it as a server error, so no notification here.
			return fmt.Errorf("granule %d of %d: %w", idx+1, len(subs), err)
		}
		if n.Status == notify.StatusFailed && !failed {
			failed = true
			deliver(notify.Notification{
				Status:  notify.StatusFailed,
				Message: fmt.Sprintf("granule %d of %d failed: %s", idx+1, len(subs), n.Message),
			})
		}
	}

	if !failed {
		deliver(notify.Notification{
			Status:  notify.StatusSuccessful,
			Message: fmt.Sprintf("all %d granules processed", len(subs)),
		})
	}
	return nil
}

// submitOne runs a single sub-invocation through the wrapped invoker and
// waits for its completion. The sub-operation gets its own router so its
// notification is captured here instead of reaching the caller.
func (a *Asynchronizer) submitOne(ctx *InvokeContext, sub *operation.Operation) (notify.Notification, error) {
	done := make(chan notify.Notification, 1)
	subRouter := notify.NewRouter(notify.SinkFunc(
		func(_ context.Context, _ *operation.Operation, n notify.Notification) error {
			done <- n
			return nil
		}), ctx.Logger)

	subCtx := &InvokeContext{
		Context:    ctx.Context,
		Operation:  sub,
		Descriptor: ctx.Descriptor,
		Router:     subRouter,
		Logger:     ctx.Logger,
		Stdout:     ctx.Stdout,
		Stderr:     ctx.Stderr,
	}
	if err := a.base.Submit(subCtx); err != nil {
		return notify.Notification{}, err
	}

	select {
	case n := <-done:
		return n, nil
	case <-ctx.Context.Done():
		return notify.Notification{
			Status:  notify.StatusFailed,
			Message: "canceled while waiting for sub-invocation: " + ctx.Context.Err().Error(),
		}, nil
	}
}
