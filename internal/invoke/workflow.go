// SPDX-License-Identifier: MPL-2.0

package invoke

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"datagate/pkg/operation"
)

type (
	// WorkflowInvoker hands the serialized operation to an external
	// orchestration engine and returns. The engine owns eventual completion
	// delivery; only a failed submission is converted into a terminal
	// failure notification here.
	WorkflowInvoker struct {
		client *http.Client
	}

	// workflowSubmission is the envelope posted to the engine: the template
	// to instantiate and the operation it parameterizes.
	workflowSubmission struct {
		Template  string               `json:"template"`
		Operation *operation.Operation `json:"operation"`
	}
)

// NewWorkflowInvoker creates the managed-workflow invoker.
func NewWorkflowInvoker(client *http.Client) *WorkflowInvoker {
	if client == nil {
		client = http.DefaultClient
	}
	return &WorkflowInvoker{client: client}
}

// Name returns the invoker name.
func (i *WorkflowInvoker) Name() string { return "workflow" }

// Submit posts a workflow-submission envelope to the engine endpoint.
func (i *WorkflowInvoker) Submit(ctx *InvokeContext) error {
	if err := ctx.validate(); err != nil {
		return err
	}
	op, desc := ctx.Operation, ctx.Descriptor

	payload, err := json.Marshal(workflowSubmission{
		Template:  desc.Target.Template,
		Operation: op,
	})
	if err != nil {
		return ctx.Router.Fail(ctx.Context, op,
			fmt.Sprintf("failed to serialize workflow submission: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx.Context, http.MethodPost, desc.Target.URL, bytes.NewReader(payload))
	if err != nil {
		return ctx.Router.Fail(ctx.Context, op,
			fmt.Sprintf("invalid workflow engine request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		return ctx.Router.Fail(ctx.Context, op,
			fmt.Sprintf("failed to reach workflow engine for service %s: %v", desc.Name, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ctx.Router.Fail(ctx.Context, op,
			fmt.Sprintf("workflow engine rejected service %s submission: %s", desc.Name, resp.Status))
	}

	ctx.Logger.Debug("workflow submitted",
		"service", desc.Name, "operation", op.ID, "template", desc.Target.Template)
	return nil
}
