// SPDX-License-Identifier: MPL-2.0

// Package config loads the declarative services configuration: a YAML file
// listing every backend service descriptor, validated against an embedded CUE
// schema and materialized into the read-only services registry.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"datagate/pkg/services"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"github.com/spf13/viper"
)

// DefaultServicesFile is the services configuration path used when the caller
// provides none.
const DefaultServicesFile = "services.yml"

//go:embed services_schema.cue
var servicesSchema string

type (
	// File is the decoded shape of the services configuration document.
	File struct {
		Services []Entry `mapstructure:"services"`
	}

	// Entry is one service block as written by the operator. It mirrors
	// services.Descriptor plus the enabled flag, which exists only at the
	// configuration layer.
	Entry struct {
		Name         string                `mapstructure:"name"`
		Mechanism    string                `mapstructure:"mechanism"`
		Collections  []string              `mapstructure:"collections"`
		Capabilities services.Capabilities `mapstructure:"capabilities"`
		Target       services.Target       `mapstructure:"target"`
		// Enabled excludes the entry from the registry when it decodes to
		// boolean false or the string "false". Absent means enabled.
		Enabled any `mapstructure:"enabled"`
	}
)

// Load reads, validates and materializes the services configuration at path
// into a registry. ${VAR} references in the document are substituted from the
// process environment before parsing; entries disabled via the enabled flag
// are dropped before registry construction.
func Load(path string) (*services.Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read services config: %w", err)
	}
	expanded := os.Expand(string(raw), os.Getenv)

	if err := validateSchema(path, expanded); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(expanded)); err != nil {
		return nil, fmt.Errorf("failed to parse services config %s: %w", path, err)
	}

	var file File
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("failed to decode services config %s: %w", path, err)
	}

	return buildRegistry(file)
}

// validateSchema unifies the YAML document with the embedded #Services CUE
// schema so malformed entries are rejected with field-level positions before
// any descriptor is built.
func validateSchema(path, document string) error {
	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(servicesSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile services schema: %w", schemaValue.Err())
	}

	docAST, err := cueyaml.Extract(path, document)
	if err != nil {
		return fmt.Errorf("failed to parse services config %s: %w", path, err)
	}
	docValue := ctx.BuildFile(docAST)
	if docValue.Err() != nil {
		return fmt.Errorf("failed to load services config %s: %w", path, docValue.Err())
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Services"))
	unified := schema.Unify(docValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return fmt.Errorf("invalid services config %s: %w", path, err)
	}
	return nil
}

// buildRegistry converts enabled entries to descriptors, checking the
// per-mechanism constraints the schema cannot express.
func buildRegistry(file File) (*services.Registry, error) {
	descriptors := make([]*services.Descriptor, 0, len(file.Services))
	for _, e := range file.Services {
		if !entryEnabled(e.Enabled) {
			continue
		}
		d := &services.Descriptor{
			Name:         e.Name,
			Mechanism:    services.Mechanism(e.Mechanism),
			Collections:  e.Collections,
			Capabilities: e.Capabilities,
			Target:       e.Target,
		}
		if err := validateTarget(d); err != nil {
			return nil, err
		}
		if err := validateCapabilities(d); err != nil {
			return nil, err
		}
		descriptors = append(descriptors, d)
	}
	return services.NewRegistry(descriptors)
}

// validateTarget checks that the target block carries the parameters the
// declared mechanism needs. Missing parameters are a deployment defect, not a
// per-request error.
func validateTarget(d *services.Descriptor) error {
	switch d.Mechanism {
	case services.MechanismHTTP, services.MechanismWorkflow:
		if d.Target.URL == "" {
			return fmt.Errorf("service %q: mechanism %s requires target.url", d.Name, d.Mechanism)
		}
	case services.MechanismProcess:
		if d.Target.Command == "" {
			return fmt.Errorf("service %q: mechanism %s requires target.command", d.Name, d.Mechanism)
		}
	case services.MechanismQueue:
		if len(d.Target.Brokers) == 0 || d.Target.Topic == "" {
			return fmt.Errorf("service %q: mechanism %s requires target.brokers and target.topic", d.Name, d.Mechanism)
		}
	}
	return nil
}

// validateCapabilities rejects capability flags the mechanism cannot honor.
// Fanning a multi-granule operation out one granule at a time requires the
// gateway to observe each sub-invocation's completion before issuing the
// next; http, workflow and queue submissions complete externally, so
// constraining them would leave the caller waiting forever.
func validateCapabilities(d *services.Descriptor) error {
	if !d.Capabilities.SingleGranule && !d.Capabilities.SynchronousOnly {
		return nil
	}
	switch d.Mechanism {
	case services.MechanismHTTP, services.MechanismWorkflow, services.MechanismQueue:
		return fmt.Errorf(
			"service %q: single_granule and synchronous_only need a mechanism whose completion the gateway observes, not %s",
			d.Name, d.Mechanism)
	}
	return nil
}

// entryEnabled interprets the enabled flag: absent means enabled; boolean
// false or the string "false" (any case) disables the entry.
func entryEnabled(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case bool:
		return val
	case string:
		return !strings.EqualFold(val, "false")
	default:
		return true
	}
}
