// SPDX-License-Identifier: MPL-2.0

package invoke

// NoOpInvoker immediately completes an operation without running any
// backend. It carries the no-match fallback: the notification payload is the
// descriptor's explanation of why no real service could run, and the caller
// falls back to direct download links for the matched granules.
type NoOpInvoker struct{}

// NewNoOpInvoker creates the fallback invoker.
func NewNoOpInvoker() *NoOpInvoker {
	return &NoOpInvoker{}
}

// Name returns the invoker name.
func (i *NoOpInvoker) Name() string { return "noop" }

// Submit delivers the synthetic completion straight away.
func (i *NoOpInvoker) Submit(ctx *InvokeContext) error {
	if err := ctx.validate(); err != nil {
		return err
	}
	message := ctx.Descriptor.Message
	if message == "" {
		message = "returning direct download links"
	}
	ctx.Logger.Debug("no-op completion", "operation", ctx.Operation.ID)
	return ctx.Router.Succeed(ctx.Context, ctx.Operation, message)
}
