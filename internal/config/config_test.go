// SPDX-License-Identifier: MPL-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"datagate/internal/selection"
	"datagate/pkg/operation"
	"datagate/pkg/services"
)

const sampleConfig = `
services:
  - name: subsetter/reproject
    mechanism: workflow
    collections: [C100, C200]
    capabilities:
      output_formats: [image/tiff, image/png]
      variable_subsetting: true
      spatial_subsetting: true
    target:
      url: https://workflows.local/api/v1/submit
      template: subset-and-reformat
  - name: subsetter/legacy
    mechanism: process
    collections: [C100]
    capabilities:
      output_formats: [image/tiff]
      single_granule: true
      synchronous_only: true
    target:
      command: /opt/services/legacy-subsetter --run
  - name: subsetter/retired
    mechanism: http
    collections: [C999]
    enabled: "false"
    target:
      url: https://retired.local/submit
  - name: publisher/batch
    mechanism: queue
    collections: [C300]
    enabled: true
    target:
      brokers: [${DATAGATE_TEST_BROKER}]
      topic: transform-requests
`

// writeConfig writes a services file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "services.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadBuildsRegistryInDeclarationOrder(t *testing.T) {
	t.Setenv("DATAGATE_TEST_BROKER", "broker-1:9092")
	registry, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	descs := registry.Descriptors()
	want := []string{"subsetter/reproject", "subsetter/legacy", "publisher/batch"}
	if len(descs) != len(want) {
		t.Fatalf("Load() produced %d services, want %d", len(descs), len(want))
	}
	for i, name := range want {
		if descs[i].Name != name {
			t.Errorf("descriptor %d = %q, want %q", i, descs[i].Name, name)
		}
	}
}

func TestLoadExcludesDisabledEntries(t *testing.T) {
	t.Setenv("DATAGATE_TEST_BROKER", "broker-1:9092")
	registry, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	for _, d := range registry.Descriptors() {
		if d.Name == "subsetter/retired" {
			t.Error("disabled service present in registry")
		}
	}
}

func TestLoadSubstitutesEnvironment(t *testing.T) {
	t.Setenv("DATAGATE_TEST_BROKER", "broker-7:9092")
	registry, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	for _, d := range registry.Descriptors() {
		if d.Name != "publisher/batch" {
			continue
		}
		if len(d.Target.Brokers) != 1 || d.Target.Brokers[0] != "broker-7:9092" {
			t.Errorf("brokers = %v, want substituted broker-7:9092", d.Target.Brokers)
		}
		return
	}
	t.Fatal("publisher/batch not found")
}

func TestLoadIsIdempotent(t *testing.T) {
	t.Setenv("DATAGATE_TEST_BROKER", "broker-1:9092")
	path := writeConfig(t, sampleConfig)

	first, err := Load(path)
	if err != nil {
		t.Fatalf("first Load() error = %v", err)
	}
	second, err := Load(path)
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}

	op := operation.New("test")
	op.Sources = []operation.Source{{Collection: "C100", Variables: []string{"v"}}}
	rc := operation.RequestContext{AcceptFormats: []string{"image/tiff"}}

	a, err := selection.NewSelector(first, nil).Select(op, rc)
	if err != nil {
		t.Fatalf("Select() on first registry error = %v", err)
	}
	opAgain := operation.New("test")
	opAgain.Sources = op.Sources
	b, err := selection.NewSelector(second, nil).Select(opAgain, rc)
	if err != nil {
		t.Fatalf("Select() on second registry error = %v", err)
	}
	if a.Name != b.Name {
		t.Errorf("selection differs across loads: %q vs %q", a.Name, b.Name)
	}
}

func TestLoadRejectsUnknownMechanism(t *testing.T) {
	const bad = `
services:
  - name: svc/bad
    mechanism: carrier-pigeon
    target:
      url: https://example.local
`
	if _, err := Load(writeConfig(t, bad)); err == nil {
		t.Fatal("Load() error = nil, want schema rejection")
	}
}

func TestLoadRejectsMissingTarget(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"http without url", `
services:
  - name: svc/a
    mechanism: http
`},
		{"process without command", `
services:
  - name: svc/b
    mechanism: process
`},
		{"queue without topic", `
services:
  - name: svc/c
    mechanism: queue
    target:
      brokers: [broker-1:9092]
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.doc))
			if err == nil {
				t.Fatal("Load() error = nil, want target validation failure")
			}
			if !strings.Contains(err.Error(), "requires") {
				t.Errorf("Load() error = %v, want per-mechanism requirement", err)
			}
		})
	}
}

func TestLoadRejectsUnobservableGranuleConstraints(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"http single granule", `
services:
  - name: svc/fan
    mechanism: http
    capabilities:
      single_granule: true
    target:
      url: https://example.local/submit
`},
		{"workflow synchronous only", `
services:
  - name: svc/wf
    mechanism: workflow
    capabilities:
      synchronous_only: true
    target:
      url: https://workflows.local/submit
      template: subset
`},
		{"queue single granule", `
services:
  - name: svc/q
    mechanism: queue
    capabilities:
      single_granule: true
    target:
      brokers: [broker-1:9092]
      topic: transform-requests
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.doc))
			if err == nil {
				t.Fatal("Load() error = nil, want rejection: the gateway cannot observe this mechanism's completions")
			}
			if !strings.Contains(err.Error(), "observes") {
				t.Errorf("Load() error = %v, want capability constraint violation", err)
			}
		})
	}
}

func TestLoadAllowsGranuleConstraintsOnProcess(t *testing.T) {
	const doc = `
services:
  - name: svc/legacy
    mechanism: process
    capabilities:
      single_granule: true
      synchronous_only: true
    target:
      command: /opt/services/legacy --run
`
	registry, err := Load(writeConfig(t, doc))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if registry.Len() != 1 {
		t.Errorf("Len() = %d, want 1", registry.Len())
	}
}

func TestEntryEnabled(t *testing.T) {
	tests := []struct {
		name string
		flag any
		want bool
	}{
		{"absent", nil, true},
		{"bool true", true, true},
		{"bool false", false, false},
		{"string false", "false", false},
		{"string False", "False", false},
		{"string true", "true", true},
		{"other string", "yes", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := entryEnabled(tt.flag); got != tt.want {
				t.Errorf("entryEnabled(%v) = %v, want %v", tt.flag, got, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Fatal("Load() error = nil, want read failure")
	}
}

// Ensure the disabled descriptor never shadows selection for its collection.
func TestDisabledServiceNotSelectable(t *testing.T) {
	t.Setenv("DATAGATE_TEST_BROKER", "broker-1:9092")
	registry, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	op := operation.New("test")
	op.Sources = []operation.Source{{Collection: "C999"}}
	desc, err := selection.NewSelector(registry, nil).Select(op, operation.RequestContext{})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if !desc.IsNoMatch() {
		t.Errorf("Select() = %q, want no-match for disabled service's collection", desc.Name)
	}
	if desc.Mechanism != services.MechanismNoOp {
		t.Errorf("fallback mechanism = %q, want noop", desc.Mechanism)
	}
}
