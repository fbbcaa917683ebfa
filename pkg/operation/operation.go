// SPDX-License-Identifier: MPL-2.0

// Package operation defines the unit of work flowing through the gateway:
// a normalized data-transformation request over one or more source
// collections, plus the request-scoped context that influences service
// selection.
package operation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type (
	// TemporalRange bounds a request or granule in time. Either end may be
	// zero to leave that side open.
	TemporalRange struct {
		Start time.Time `json:"start,omitempty"`
		End   time.Time `json:"end,omitempty"`
	}

	// BoundingBox is a geographic subset in [west, south, east, north]
	// order, degrees.
	BoundingBox [4]float64

	// Granule is one resolved input file belonging to a source collection.
	Granule struct {
		ID       string         `json:"id"`
		Name     string         `json:"name,omitempty"`
		URL      string         `json:"url"`
		Temporal *TemporalRange `json:"temporal,omitempty"`
	}

	// Source is one collection referenced by an operation, with the
	// variables to subset (if any) and the granules resolved for it by the
	// metadata-resolution stage.
	Source struct {
		Collection string    `json:"collection"`
		Variables  []string  `json:"variables,omitempty"`
		Granules   []Granule `json:"granules,omitempty"`
	}

	// Operation is a single data-transformation request. It is created by
	// request validation and metadata resolution, treated as append-only
	// afterwards: the selector may set Format once resolved, and invokers
	// may fill transport details, but nothing else mutates it.
	Operation struct {
		// ID uniquely identifies this operation across submission,
		// callbacks and completion tracking.
		ID string `json:"id"`
		// Client identifies the requesting application.
		Client string `json:"client,omitempty"`
		// User is the authenticated end user on whose behalf the
		// operation runs.
		User string `json:"user,omitempty"`
		// CallbackURL is the caller-reachable completion address. Its
		// format and delivery protocol are owned by the caller layer.
		CallbackURL string `json:"callback_url"`
		// Sources are the collections and resolved granules to process.
		Sources []Source `json:"sources"`
		// BoundingBox, when set, requests spatial subsetting.
		BoundingBox *BoundingBox `json:"bounding_box,omitempty"`
		// Temporal, when set, requests temporal subsetting.
		Temporal *TemporalRange `json:"temporal,omitempty"`
		// Format is the resolved output MIME type. Empty until the
		// selector resolves it against the request context.
		Format string `json:"format,omitempty"`
		// IsSynchronous reports whether the caller is blocking on the
		// result rather than polling a job.
		IsSynchronous bool `json:"is_synchronous,omitempty"`
		// RequireSynchronous forces synchronous handling even for requests
		// that could be queued as jobs.
		RequireSynchronous bool `json:"require_synchronous,omitempty"`
		// StagingLocation is where backends place output artifacts.
		StagingLocation string `json:"staging_location,omitempty"`
	}

	// RequestContext carries ancillary request data that influences
	// selection but is not part of the operation itself. It is immutable
	// and scoped to one selection call.
	RequestContext struct {
		// AcceptFormats lists acceptable output media types in caller
		// preference order. Wildcard forms ("image/*", "*/*") are
		// permitted.
		AcceptFormats []string
	}
)

// New creates an operation with a fresh ID for the given client.
func New(client string) *Operation {
	return &Operation{
		ID:     uuid.NewString(),
		Client: client,
	}
}

// Collections returns the distinct collection IDs referenced by the
// operation's sources, in first-reference order.
func (o *Operation) Collections() []string {
	seen := make(map[string]bool, len(o.Sources))
	var ids []string
	for _, s := range o.Sources {
		if !seen[s.Collection] {
			seen[s.Collection] = true
			ids = append(ids, s.Collection)
		}
	}
	return ids
}

// HasVariables reports whether any source names variables to subset.
func (o *Operation) HasVariables() bool {
	for _, s := range o.Sources {
		if len(s.Variables) > 0 {
			return true
		}
	}
	return false
}

// HasBoundingBox reports whether the operation requests spatial subsetting.
func (o *Operation) HasBoundingBox() bool {
	return o.BoundingBox != nil
}

// GranuleCount returns the total number of input granules across all sources.
func (o *Operation) GranuleCount() int {
	n := 0
	for _, s := range o.Sources {
		n += len(s.Granules)
	}
	return n
}

// SplitGranules partitions a multi-granule operation into one sub-operation
// per granule, preserving source order. Each sub-operation gets its own ID so
// completion tracking can distinguish it from its parent and siblings; all
// other request parameters are carried over unchanged. An operation with one
// or zero granules yields itself as the only element.
func (o *Operation) SplitGranules() []*Operation {
	if o.GranuleCount() <= 1 {
		return []*Operation{o}
	}
	var subs []*Operation
	for _, s := range o.Sources {
		for _, g := range s.Granules {
			sub := *o
			sub.ID = uuid.NewString()
			sub.Sources = []Source{{
				Collection: s.Collection,
				Variables:  s.Variables,
				Granules:   []Granule{g},
			}}
			subs = append(subs, &sub)
		}
	}
	return subs
}

// Marshal serializes the operation for transport to a backend (child process
// environment, queue message, workflow parameter).
func (o *Operation) Marshal() ([]byte, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize operation %s: %w", o.ID, err)
	}
	return data, nil
}

// Unmarshal deserializes an operation previously produced by Marshal.
func Unmarshal(data []byte) (*Operation, error) {
	var o Operation
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to parse operation: %w", err)
	}
	return &o, nil
}
