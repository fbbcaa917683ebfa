// SPDX-License-Identifier: MPL-2.0

package selection

import (
	"errors"
	"fmt"
	"strings"

	"datagate/pkg/operation"
	"datagate/pkg/services"
)

// ErrUnsupported is the sentinel error wrapped by UnsupportedError.
var ErrUnsupported = errors.New("unsupported operation")

type (
	// UnsupportedError signals that an elimination stage exhausted the
	// candidate set. It is an expected, frequent outcome: the selector
	// converts it into the no-match fallback and never surfaces it to the
	// caller.
	UnsupportedError struct {
		// Requirement names the capability no remaining service could
		// provide (e.g. "variable subsetting").
		Requirement string
		// Collections are the collection IDs the requirement was
		// evaluated against.
		Collections []string
	}

	// stage is one step of the elimination pipeline. It narrows candidates
	// or returns an UnsupportedError; any other error is fatal and
	// propagates unchanged.
	stage struct {
		name  string
		apply func(op *operation.Operation, rc operation.RequestContext, cands []*services.Descriptor) ([]*services.Descriptor, error)
	}
)

// Error implements the error interface.
func (e *UnsupportedError) Error() string {
	if len(e.Collections) == 0 {
		return fmt.Sprintf("no services support %s", e.Requirement)
	}
	return fmt.Sprintf("no services support %s for %s", e.Requirement, strings.Join(e.Collections, ", "))
}

// Unwrap returns ErrUnsupported so callers can use errors.Is for
// programmatic detection.
func (e *UnsupportedError) Unwrap() error { return ErrUnsupported }

// pipeline is the fixed stage order. Collections first so later messages can
// name the offending collections; format resolution before spatial matching
// so the resolved format narrows the set the spatial stage sees.
var pipeline = []stage{
	{name: "collections", apply: stageCollections},
	{name: "variable-subsetting", apply: stageVariableSubsetting},
	{name: "output-format", apply: stageOutputFormat},
	{name: "spatial-subsetting", apply: stageSpatialSubsetting},
}

// stageCollections keeps descriptors that serve every collection the
// operation references.
func stageCollections(op *operation.Operation, _ operation.RequestContext, cands []*services.Descriptor) ([]*services.Descriptor, error) {
	colls := op.Collections()
	var keep []*services.Descriptor
	for _, d := range cands {
		servesAll := true
		for _, c := range colls {
			if !d.ServesCollection(c) {
				servesAll = false
				break
			}
		}
		if servesAll {
			keep = append(keep, d)
		}
	}
	if len(keep) == 0 {
		return nil, &UnsupportedError{Requirement: "any transformation", Collections: colls}
	}
	return keep, nil
}

// stageVariableSubsetting keeps descriptors flagged for variable subsetting.
// A no-op when the operation names no variables.
func stageVariableSubsetting(op *operation.Operation, _ operation.RequestContext, cands []*services.Descriptor) ([]*services.Descriptor, error) {
	if !op.HasVariables() {
		return cands, nil
	}
	var keep []*services.Descriptor
	for _, d := range cands {
		if d.Capabilities.VariableSubsetting {
			keep = append(keep, d)
		}
	}
	if len(keep) == 0 {
		return nil, &UnsupportedError{Requirement: "variable subsetting", Collections: op.Collections()}
	}
	return keep, nil
}

// stageOutputFormat resolves exactly one concrete output format and narrows
// candidates to descriptors offering it. The accepted types are walked in
// caller preference order; within one type, candidate declaration order then
// format declaration order decide precedence. A no-op when neither the
// operation nor the context names a format.
func stageOutputFormat(op *operation.Operation, rc operation.RequestContext, cands []*services.Descriptor) ([]*services.Descriptor, error) {
	requested := rc.AcceptFormats
	if op.Format != "" {
		requested = []string{op.Format}
	}
	if len(requested) == 0 {
		return cands, nil
	}

	resolved := ""
	for _, want := range requested {
		for _, d := range cands {
			for _, f := range d.Capabilities.OutputFormats {
				if mimeMatch(want, f) {
					resolved = f
					break
				}
			}
			if resolved != "" {
				break
			}
		}
		if resolved != "" {
			break
		}
	}
	if resolved == "" {
		return nil, &UnsupportedError{
			Requirement: "reformatting to " + strings.Join(requested, ", "),
			Collections: op.Collections(),
		}
	}

	op.Format = resolved
	var keep []*services.Descriptor
	for _, d := range cands {
		if d.SupportsFormat(resolved) {
			keep = append(keep, d)
		}
	}
	return keep, nil
}

// stageSpatialSubsetting keeps descriptors flagged for spatial subsetting.
// A no-op when the operation carries no bounding box.
func stageSpatialSubsetting(op *operation.Operation, _ operation.RequestContext, cands []*services.Descriptor) ([]*services.Descriptor, error) {
	if !op.HasBoundingBox() {
		return cands, nil
	}
	var keep []*services.Descriptor
	for _, d := range cands {
		if d.Capabilities.SpatialSubsetting {
			keep = append(keep, d)
		}
	}
	if len(keep) == 0 {
		return nil, &UnsupportedError{Requirement: "spatial subsetting", Collections: op.Collections()}
	}
	return keep, nil
}
