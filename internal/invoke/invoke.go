// SPDX-License-Identifier: MPL-2.0

// Package invoke normalizes the heterogeneous execution mechanisms of backend
// services (direct HTTP call, local child process, workflow-engine
// submission, queue publish) into one uniform contract: submit the operation,
// and exactly one completion notification eventually reaches its completion
// address, no matter how the mechanism fails.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"datagate/internal/notify"
	"datagate/pkg/operation"
	"datagate/pkg/services"

	"github.com/Shopify/sarama"
)

// ErrNoInvoker is the sentinel error wrapped by NoInvokerError.
var ErrNoInvoker = errors.New("no invoker registered")

type (
	// InvokeContext binds one submission: the operation, the descriptor
	// chosen for it, and the router that guards its exactly-once
	// completion. Each in-flight operation owns its context exclusively.
	InvokeContext struct {
		// Context is the Go context for cancellation and deadlines.
		Context context.Context
		// Operation is the unit of work being submitted.
		Operation *operation.Operation
		// Descriptor is the selected backend service.
		Descriptor *services.Descriptor
		// Router delivers completion notifications exactly once.
		Router *notify.Router
		// Logger receives diagnostic lines for this invocation.
		Logger *slog.Logger
		// Stdout and Stderr receive child process diagnostics in addition
		// to the log stream. Default to the process streams.
		Stdout io.Writer
		Stderr io.Writer
	}

	// Invoker is the uniform submission contract. Submit initiates the
	// backend work; every failure after this point — including submission
	// transport failures — is reported through the router as a terminal
	// failure notification, never as a returned error. A non-nil error
	// means the invocation could not even be attempted (malformed context
	// or descriptor) and indicates a configuration defect.
	Invoker interface {
		// Name returns the invoker name for logs.
		Name() string
		// Submit initiates the operation against the backend.
		Submit(ctx *InvokeContext) error
	}

	// NoInvokerError is returned when a descriptor's mechanism has no
	// registered invoker. This is a startup-detectable misconfiguration,
	// not a per-request user error.
	NoInvokerError struct {
		Mechanism services.Mechanism
	}

	// Registry holds the invoker registered for each mechanism. Populated
	// at startup, read-only afterwards.
	Registry struct {
		invokers map[services.Mechanism]Invoker
	}

	// BuildRegistryOptions configures invoker registry construction. Nil
	// fields get production defaults; tests inject fakes.
	BuildRegistryOptions struct {
		// HTTPClient is used by the http and workflow invokers.
		HTTPClient *http.Client
		// NewProducer creates the queue producer for a broker set. The
		// default dials a real Kafka sync producer.
		NewProducer ProducerFactory
	}

	// ProducerFactory creates a message producer for the given brokers.
	ProducerFactory func(brokers []string) (sarama.SyncProducer, error)
)

// Error implements the error interface.
func (e *NoInvokerError) Error() string {
	return fmt.Sprintf("no invoker registered for mechanism %q", e.Mechanism)
}

// Unwrap returns ErrNoInvoker so callers can use errors.Is for programmatic
// detection.
func (e *NoInvokerError) Unwrap() error { return ErrNoInvoker }

// NewInvokeContext creates an invoke context with defaults for the optional
// fields.
func NewInvokeContext(op *operation.Operation, desc *services.Descriptor, router *notify.Router) *InvokeContext {
	return &InvokeContext{
		Context:    context.Background(),
		Operation:  op,
		Descriptor: desc,
		Router:     router,
		Logger:     slog.Default(),
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	}
}

// validate checks the invariants every invoker relies on.
func (c *InvokeContext) validate() error {
	if c.Operation == nil {
		return fmt.Errorf("invoke context has no operation")
	}
	if c.Descriptor == nil {
		return fmt.Errorf("invoke context has no descriptor")
	}
	if c.Router == nil {
		return fmt.Errorf("invoke context has no completion router")
	}
	if c.Context == nil {
		c.Context = context.Background()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// NewRegistry creates an empty invoker registry.
func NewRegistry() *Registry {
	return &Registry{invokers: make(map[services.Mechanism]Invoker)}
}

// Register binds an invoker to a mechanism, replacing any previous binding.
func (r *Registry) Register(m services.Mechanism, inv Invoker) {
	r.invokers[m] = inv
}

// Get returns the invoker for a mechanism or a NoInvokerError.
func (r *Registry) Get(m services.Mechanism) (Invoker, error) {
	inv, ok := r.invokers[m]
	if !ok {
		return nil, &NoInvokerError{Mechanism: m}
	}
	return inv, nil
}

// Build returns the invoker that will carry the descriptor's invocations.
// Descriptors flagged single-granule or synchronous-only get the base invoker
// wrapped by the asynchronizer so multi-granule operations are fanned out
// into sequential single-unit sub-invocations.
func (r *Registry) Build(desc *services.Descriptor) (Invoker, error) {
	base, err := r.Get(desc.Mechanism)
	if err != nil {
		return nil, err
	}
	if desc.Capabilities.SingleGranule || desc.Capabilities.SynchronousOnly {
		return NewAsynchronizer(base), nil
	}
	return base, nil
}

// BuildRegistry creates the production invoker registry with all five
// mechanisms bound.
func BuildRegistry(opts BuildRegistryOptions) *Registry {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	newProducer := opts.NewProducer
	if newProducer == nil {
		newProducer = defaultProducerFactory
	}

	r := NewRegistry()
	r.Register(services.MechanismHTTP, NewHTTPInvoker(client))
	r.Register(services.MechanismProcess, NewProcessInvoker())
	r.Register(services.MechanismWorkflow, NewWorkflowInvoker(client))
	r.Register(services.MechanismQueue, NewQueueInvoker(newProducer))
	r.Register(services.MechanismNoOp, NewNoOpInvoker())
	return r
}

// defaultProducerFactory dials a Kafka sync producer. Sync because a publish
// must be confirmed or converted into a terminal failure notification before
// Submit returns.
func defaultProducerFactory(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	return sarama.NewSyncProducer(brokers, cfg)
}
