// SPDX-License-Identifier: MPL-2.0

// Package services defines the capability descriptors for configured backend
// services and the read-only registry they live in for the life of the
// process.
package services

import (
	"errors"
	"fmt"
)

// Mechanism constants for the supported execution strategies.
const (
	// MechanismHTTP submits the operation with a single outbound HTTP call;
	// the backend responds to the completion address itself.
	MechanismHTTP Mechanism = "http"
	// MechanismProcess spawns a local child process per invocation.
	MechanismProcess Mechanism = "process"
	// MechanismWorkflow hands the operation to an external workflow engine.
	MechanismWorkflow Mechanism = "workflow"
	// MechanismQueue publishes the operation to a message topic for
	// out-of-process pickup.
	MechanismQueue Mechanism = "queue"
	// MechanismNoOp delivers a synthetic completion without running any
	// backend. Used by the no-match fallback.
	MechanismNoOp Mechanism = "noop"
)

// NoMatchName is the name of the synthetic fallback descriptor returned when
// elimination exhausts every configured service.
const NoMatchName = "noop/download-links-only"

// ErrInvalidMechanism is the sentinel error wrapped by InvalidMechanismError.
var ErrInvalidMechanism = errors.New("invalid service mechanism")

type (
	// Mechanism identifies the transport/execution strategy a descriptor
	// uses. The set is closed; unknown values are a configuration error.
	Mechanism string

	// InvalidMechanismError is returned when a descriptor declares a
	// mechanism outside the closed set.
	InvalidMechanismError struct {
		Value Mechanism
	}

	// Capabilities is a descriptor's declared feature record.
	Capabilities struct {
		// OutputFormats lists the concrete MIME types the service can
		// produce, in the order the operator declared them.
		OutputFormats []string `mapstructure:"output_formats" json:"output_formats,omitempty"`
		// VariableSubsetting reports whether the service can subset by
		// variable.
		VariableSubsetting bool `mapstructure:"variable_subsetting" json:"variable_subsetting,omitempty"`
		// SpatialSubsetting reports whether the service can subset by
		// bounding box.
		SpatialSubsetting bool `mapstructure:"spatial_subsetting" json:"spatial_subsetting,omitempty"`
		// SingleGranule constrains the service to one input granule per
		// invocation.
		SingleGranule bool `mapstructure:"single_granule" json:"single_granule,omitempty"`
		// SynchronousOnly constrains the service to one invocation at a
		// time, completing before the next begins.
		SynchronousOnly bool `mapstructure:"synchronous_only" json:"synchronous_only,omitempty"`
	}

	// Target holds the per-mechanism invocation parameters. Only the
	// fields relevant to the descriptor's mechanism are populated.
	Target struct {
		// URL is the submission endpoint for http and workflow services.
		URL string `mapstructure:"url" json:"url,omitempty"`
		// Command is the child process command line for process services.
		Command string `mapstructure:"command" json:"command,omitempty"`
		// Brokers are the message broker addresses for queue services.
		Brokers []string `mapstructure:"brokers" json:"brokers,omitempty"`
		// Topic is the destination topic for queue services.
		Topic string `mapstructure:"topic" json:"topic,omitempty"`
		// Template names the workflow template for workflow services.
		Template string `mapstructure:"template" json:"template,omitempty"`
	}

	// Descriptor is one configured backend service: its name, execution
	// mechanism, the collections it may serve, and its capability record.
	// Descriptors are loaded once at startup and immutable thereafter,
	// except for the Message field of the no-match fallback.
	Descriptor struct {
		Name         string       `mapstructure:"name" json:"name"`
		Mechanism    Mechanism    `mapstructure:"mechanism" json:"mechanism"`
		Collections  []string     `mapstructure:"collections" json:"collections,omitempty"`
		Capabilities Capabilities `mapstructure:"capabilities" json:"capabilities"`
		Target       Target       `mapstructure:"target" json:"target"`
		// Message carries the human-readable explanation on the no-match
		// fallback descriptor. Empty on real services.
		Message string `json:"message,omitempty"`
	}

	// Registry is the process-lifetime store of enabled descriptors in
	// declaration order. It is immutable after construction and safe for
	// concurrent reads without locking.
	Registry struct {
		descriptors []*Descriptor
	}
)

// Error implements the error interface.
func (e *InvalidMechanismError) Error() string {
	return fmt.Sprintf("invalid service mechanism %q (valid: %s, %s, %s, %s, %s)",
		e.Value, MechanismHTTP, MechanismProcess, MechanismWorkflow, MechanismQueue, MechanismNoOp)
}

// Unwrap returns ErrInvalidMechanism so callers can use errors.Is for
// programmatic detection.
func (e *InvalidMechanismError) Unwrap() error { return ErrInvalidMechanism }

// String returns the string representation of the Mechanism.
func (m Mechanism) String() string { return string(m) }

// Validate returns nil if the Mechanism is one of the defined strategies, or
// a validation error if it is not.
func (m Mechanism) Validate() error {
	switch m {
	case MechanismHTTP, MechanismProcess, MechanismWorkflow, MechanismQueue, MechanismNoOp:
		return nil
	default:
		return &InvalidMechanismError{Value: m}
	}
}

// ServesCollection reports whether the descriptor is configured to serve the
// given collection.
func (d *Descriptor) ServesCollection(id string) bool {
	for _, c := range d.Collections {
		if c == id {
			return true
		}
	}
	return false
}

// SupportsFormat reports whether the descriptor declares the exact output
// format.
func (d *Descriptor) SupportsFormat(format string) bool {
	for _, f := range d.Capabilities.OutputFormats {
		if f == format {
			return true
		}
	}
	return false
}

// IsNoMatch reports whether the descriptor is the synthetic fallback rather
// than a configured service.
func (d *Descriptor) IsNoMatch() bool {
	return d.Name == NoMatchName
}

// NoMatch returns the synthetic fallback descriptor carrying the given
// human-readable explanation of why no configured service matched. It never
// serves any collection and invokes the no-op mechanism.
func NoMatch(reason string) *Descriptor {
	return &Descriptor{
		Name:      NoMatchName,
		Mechanism: MechanismNoOp,
		Message:   reason,
	}
}

// NewRegistry builds a registry from descriptors in declaration order,
// validating each mechanism. The input slice is copied; the registry never
// mutates or exposes shared state.
func NewRegistry(descriptors []*Descriptor) (*Registry, error) {
	seen := make(map[string]bool, len(descriptors))
	out := make([]*Descriptor, 0, len(descriptors))
	for i, d := range descriptors {
		if d.Name == "" {
			return nil, fmt.Errorf("service at index %d has no name", i)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("duplicate service name %q", d.Name)
		}
		seen[d.Name] = true
		if err := d.Mechanism.Validate(); err != nil {
			return nil, fmt.Errorf("service %q: %w", d.Name, err)
		}
		out = append(out, d)
	}
	return &Registry{descriptors: out}, nil
}

// Descriptors returns the enabled descriptors in declaration order. The
// returned slice is a copy; the descriptors themselves are shared and must
// not be mutated.
func (r *Registry) Descriptors() []*Descriptor {
	out := make([]*Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int { return len(r.descriptors) }
