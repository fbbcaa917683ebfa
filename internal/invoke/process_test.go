// SPDX-License-Identifier: MPL-2.0

package invoke

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"datagate/internal/notify"
	"datagate/pkg/services"
)

func processDescriptor(command string) *services.Descriptor {
	return &services.Descriptor{
		Name:      "svc/process",
		Mechanism: services.MechanismProcess,
		Target:    services.Target{Command: command},
		Capabilities: services.Capabilities{
			SingleGranule:   true,
			SynchronousOnly: true,
		},
	}
}

func TestProcessInvokerCrashDeliversSyntheticFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping process test in short mode")
	}

	sink := &captureSink{}
	ctx := newTestContext(granuleOperation(1), processDescriptor("sh -c 'exit 3'"), sink)

	if err := NewProcessInvoker().Submit(ctx); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	got := sink.all()
	if len(got) != 1 {
		t.Fatalf("caller received %d notifications, want exactly 1 synthetic failure", len(got))
	}
	if got[0].Status != notify.StatusFailed {
		t.Errorf("status = %q, want %q", got[0].Status, notify.StatusFailed)
	}
	if !strings.Contains(got[0].Message, "failed with an unknown error") {
		t.Errorf("message = %q, want unknown-error phrasing", got[0].Message)
	}
}

func TestProcessInvokerCleanExitWithoutNotifyingStillFails(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping process test in short mode")
	}

	sink := &captureSink{}
	ctx := newTestContext(granuleOperation(1), processDescriptor("true"), sink)

	if err := NewProcessInvoker().Submit(ctx); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// Exit 0 without a notification is still an abandoned caller.
	got := sink.all()
	if len(got) != 1 || got[0].Status != notify.StatusFailed {
		t.Fatalf("caller notifications = %+v, want exactly one synthetic failure", got)
	}
}

func TestProcessInvokerCleanExitAfterNotificationStaysSilent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping process test in short mode")
	}

	sink := &captureSink{}
	op := granuleOperation(1)
	router := notify.NewRouter(sink, nil)
	ctx := NewInvokeContext(op, processDescriptor("true"), router)

	// Stand in for the child having delivered its own completion through
	// the callback address before exiting.
	if err := router.Succeed(context.Background(), op, "done"); err != nil {
		t.Fatalf("Succeed() error = %v", err)
	}

	if err := NewProcessInvoker().Submit(ctx); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	got := sink.all()
	if len(got) != 1 {
		t.Fatalf("caller received %d notifications, want only the child's own", len(got))
	}
	if got[0].Status != notify.StatusSuccessful {
		t.Errorf("status = %q, want the child's success untouched", got[0].Status)
	}
}

func TestProcessInvokerCrashAfterNotificationIsDeduplicated(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping process test in short mode")
	}

	sink := &captureSink{}
	op := granuleOperation(1)
	router := notify.NewRouter(sink, nil)
	ctx := NewInvokeContext(op, processDescriptor("sh -c 'exit 1'"), router)

	if err := router.Succeed(context.Background(), op, "done"); err != nil {
		t.Fatalf("Succeed() error = %v", err)
	}
	if err := NewProcessInvoker().Submit(ctx); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// The synthetic failure is attempted but dropped by the router.
	got := sink.all()
	if len(got) != 1 || got[0].Status != notify.StatusSuccessful {
		t.Fatalf("caller notifications = %+v, want only the prior success", got)
	}
}

func TestProcessInvokerInvalidCommand(t *testing.T) {
	sink := &captureSink{}
	ctx := newTestContext(granuleOperation(1), processDescriptor(""), sink)

	if err := NewProcessInvoker().Submit(ctx); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	got := sink.all()
	if len(got) != 1 || got[0].Status != notify.StatusFailed {
		t.Fatalf("caller notifications = %+v, want exactly one failure", got)
	}
}

func TestProcessInvokerPassesOperationEnvironment(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping process test in short mode")
	}

	sink := &captureSink{}
	op := granuleOperation(1)
	op.CallbackURL = "https://gateway.local/callback/" + op.ID

	outFile := filepath.Join(t.TempDir(), "payload.json")
	cmd := fmt.Sprintf(`sh -c 'printf %%s "$DATAGATE_OPERATION" > %s'`, outFile)
	ctx := newTestContext(op, processDescriptor(cmd), sink)

	if err := NewProcessInvoker().Submit(ctx); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	payload, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatalf("child did not write the payload: %v", err)
	}
	if !strings.Contains(string(payload), op.ID) {
		t.Errorf("child payload %q does not carry operation %s", payload, op.ID)
	}
}
