// SPDX-License-Identifier: MPL-2.0

// Package notify defines the completion notification contract: every
// submitted operation eventually produces exactly one terminal notification,
// regardless of which invocation mechanism ran it or how it failed.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"datagate/pkg/operation"
)

// Status values for terminal notifications.
const (
	// StatusSuccessful marks a completed operation.
	StatusSuccessful Status = "successful"
	// StatusFailed marks a terminally failed operation.
	StatusFailed Status = "failed"
)

type (
	// Status is the terminal state carried by a notification.
	Status string

	// Notification is the single terminal record delivered per operation.
	Notification struct {
		OperationID string `json:"operation_id"`
		Status      Status `json:"status"`
		// Message is a machine-readable reason on failure, or optional
		// detail on success.
		Message string `json:"message,omitempty"`
	}

	// Sink is the callback-receiving surface. The caller layer owns the
	// transport behind it; this core only guarantees that and how many
	// notifications reach it.
	Sink interface {
		Notify(ctx context.Context, op *operation.Operation, n Notification) error
	}

	// SinkFunc adapts a function to the Sink interface.
	SinkFunc func(ctx context.Context, op *operation.Operation, n Notification) error

	// Router wraps a Sink with the exactly-once guarantee. The first
	// terminal notification per operation ID is delivered; later ones are
	// dropped with a warning. Delivered exposes the per-operation state so
	// the process invoker can detect a child that exited without ever
	// notifying.
	Router struct {
		sink   Sink
		logger *slog.Logger

		mu        sync.Mutex
		delivered map[string]bool
	}
)

// Notify implements Sink.
func (f SinkFunc) Notify(ctx context.Context, op *operation.Operation, n Notification) error {
	return f(ctx, op, n)
}

// NewRouter creates a router delivering to sink. A nil logger falls back to
// slog.Default.
func NewRouter(sink Sink, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		sink:      sink,
		logger:    logger,
		delivered: make(map[string]bool),
	}
}

// Notify delivers a terminal notification for op exactly once. A second
// notification for the same operation is dropped and logged, never forwarded.
// The operation is marked delivered before the sink runs, so a sink error
// does not reopen the exactly-once gate.
func (r *Router) Notify(ctx context.Context, op *operation.Operation, n Notification) error {
	if n.OperationID == "" {
		n.OperationID = op.ID
	}

	r.mu.Lock()
	if r.delivered[op.ID] {
		r.mu.Unlock()
		r.logger.Warn("dropping duplicate completion notification",
			"operation", op.ID, "status", n.Status)
		return nil
	}
	r.delivered[op.ID] = true
	r.mu.Unlock()

	if err := r.sink.Notify(ctx, op, n); err != nil {
		r.logger.Error("completion notification delivery failed",
			"operation", op.ID, "status", n.Status, "error", err)
		return err
	}
	return nil
}

// Fail delivers a failure notification with the given reason.
func (r *Router) Fail(ctx context.Context, op *operation.Operation, message string) error {
	return r.Notify(ctx, op, Notification{Status: StatusFailed, Message: message})
}

// Succeed delivers a success notification with optional detail.
func (r *Router) Succeed(ctx context.Context, op *operation.Operation, message string) error {
	return r.Notify(ctx, op, Notification{Status: StatusSuccessful, Message: message})
}

// Delivered reports whether a terminal notification has already been
// delivered (or attempted) for the operation ID.
func (r *Router) Delivered(opID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delivered[opID]
}
