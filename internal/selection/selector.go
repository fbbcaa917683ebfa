// SPDX-License-Identifier: MPL-2.0

// Package selection implements the deterministic multi-criteria elimination
// pipeline that narrows the configured service set down to the single
// descriptor that will handle an operation, with a documented no-match
// fallback when elimination exhausts all candidates.
package selection

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"datagate/pkg/operation"
	"datagate/pkg/services"
)

// Selector drives the elimination pipeline over the descriptor registry,
// applies the declaration-order tie-break, and substitutes the no-match
// fallback when no real service can satisfy the request.
type Selector struct {
	registry *services.Registry
	logger   *slog.Logger
}

// NewSelector creates a selector over the given registry. A nil logger falls
// back to slog.Default.
func NewSelector(registry *services.Registry, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{registry: registry, logger: logger}
}

// Select runs the pipeline and returns the chosen descriptor. Exhausting the
// candidate set at any stage is not an error: the synthetic no-match
// descriptor is returned with an explanation of the unmet requirement. Any
// other stage error propagates unchanged and should be treated as a
// server-side defect.
//
// Select is pure apart from one sanctioned side effect: the output-format
// stage may set op.Format once resolved.
func (s *Selector) Select(op *operation.Operation, rc operation.RequestContext) (*services.Descriptor, error) {
	start := time.Now()
	cands := s.registry.Descriptors()
	initial := len(cands)

	for _, st := range pipeline {
		narrowed, err := st.apply(op, rc, cands)
		if err != nil {
			var unsupported *UnsupportedError
			if errors.As(err, &unsupported) {
				s.logger.Info("no service matched, using download-links fallback",
					"stage", st.name, "requirement", unsupported.Requirement,
					"collections", strings.Join(unsupported.Collections, ","),
					"elapsed", time.Since(start))
				return services.NoMatch(s.unsupportedMessage(op, rc)), nil
			}
			return nil, err
		}
		cands = narrowed
	}

	// Tie-break: first survivor in declaration order.
	chosen := cands[0]
	s.logger.Debug("service selected",
		"service", chosen.Name, "mechanism", chosen.Mechanism.String(),
		"candidates", initial, "remaining", len(cands),
		"elapsed", time.Since(start))
	return chosen, nil
}

// unsupportedMessage re-derives which requested operations went unmet and
// phrases them against the offending collection names, e.g.
//
//	the requested combination of operations: variable subsetting and
//	reformatting to image/png on C1234-PROV is unsupported
func (s *Selector) unsupportedMessage(op *operation.Operation, rc operation.RequestContext) string {
	var requested []string
	if op.HasVariables() {
		requested = append(requested, "variable subsetting")
	}
	if op.HasBoundingBox() {
		requested = append(requested, "spatial subsetting")
	}
	if format := requestedFormat(op, rc); format != "" {
		requested = append(requested, "reformatting to "+format)
	}

	colls := strings.Join(op.Collections(), ", ")
	if colls == "" {
		colls = "the requested collections"
	}
	if len(requested) == 0 {
		return "no operations can be performed on " + colls
	}
	return "the requested combination of operations: " +
		strings.Join(requested, " and ") + " on " + colls + " is unsupported"
}

// requestedFormat returns the format the caller asked for, preferring an
// already-resolved operation format over the context's first acceptable type.
func requestedFormat(op *operation.Operation, rc operation.RequestContext) string {
	if op.Format != "" {
		return op.Format
	}
	if len(rc.AcceptFormats) > 0 {
		return rc.AcceptFormats[0]
	}
	return ""
}
