// SPDX-License-Identifier: MPL-2.0

package invoke

import (
	"bytes"
	"fmt"
	"net/http"
	"time"
)

const (
	submitMaxAttempts = 3
	submitBaseBackoff = 250 * time.Millisecond
)

// HTTPInvoker submits an operation with a single outbound POST carrying the
// serialized operation. The backend responds asynchronously to the
// operation's completion address itself, so this invoker's responsibility
// ends at a successful submission; a failed submission (unreachable backend,
// non-2xx status) is itself a terminal failure notification.
type HTTPInvoker struct {
	client *http.Client
}

// NewHTTPInvoker creates the direct-call invoker.
func NewHTTPInvoker(client *http.Client) *HTTPInvoker {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPInvoker{client: client}
}

// Name returns the invoker name.
func (i *HTTPInvoker) Name() string { return "http" }

// Submit posts the operation to the descriptor's submission URL. Transient
// connection errors are retried a few times before the failure notification
// is delivered; a definitive backend rejection is not retried.
func (i *HTTPInvoker) Submit(ctx *InvokeContext) error {
	if err := ctx.validate(); err != nil {
		return err
	}
	op, desc := ctx.Operation, ctx.Descriptor

	payload, err := op.Marshal()
	if err != nil {
		return ctx.Router.Fail(ctx.Context, op, err.Error())
	}

	logger := ctx.Logger.With("service", desc.Name, "operation", op.ID)
	err = retryWithBackoff(ctx.Context, logger, submitMaxAttempts, submitBaseBackoff,
		func() (bool, error) {
			return i.post(ctx, desc.Target.URL, payload)
		})
	if err != nil {
		return ctx.Router.Fail(ctx.Context, op,
			fmt.Sprintf("failed to submit to service %s: %v", desc.Name, err))
	}

	ctx.Logger.Debug("operation submitted", "service", desc.Name, "operation", op.ID)
	return nil
}

// post performs one submission attempt. Connection-level errors are
// retryable; HTTP-level rejections are permanent.
func (i *HTTPInvoker) post(ctx *InvokeContext, url string, payload []byte) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx.Context, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("invalid submission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("service returned status %s", resp.Status)
	}
	return false, nil
}
