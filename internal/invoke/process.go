// SPDX-License-Identifier: MPL-2.0

package invoke

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"mvdan.cc/sh/v3/shell"
)

// Environment variables handed to service child processes.
const (
	// EnvOperation carries the serialized operation.
	EnvOperation = "DATAGATE_OPERATION"
	// EnvCallbackURL carries the completion address the child must notify
	// before exiting.
	EnvCallbackURL = "DATAGATE_CALLBACK_URL"
	// EnvStagingLocation carries the output staging location.
	EnvStagingLocation = "DATAGATE_STAGING_LOCATION"
)

// ProcessInvoker runs a service as an isolated local child process. The
// operation is serialized into the child's environment; the child's
// diagnostic output is piped to the host's log stream while the invoker
// blocks on process exit.
//
// The child itself is responsible for delivering the completion notification
// before exiting. If it terminates abnormally — non-zero exit, or exit
// without ever notifying — the invoker delivers a synthetic failure
// notification so a crashed worker never leaves the caller hanging.
type ProcessInvoker struct {
	// Env supplies the base environment for children. Defaults to the
	// host environment; tests narrow it.
	Env []string
}

// NewProcessInvoker creates the local-process invoker.
func NewProcessInvoker() *ProcessInvoker {
	return &ProcessInvoker{}
}

// Name returns the invoker name.
func (i *ProcessInvoker) Name() string { return "process" }

// Submit launches the configured child process and waits for it to exit.
// Spawn failures and abnormal terminations become terminal failure
// notifications; a clean exit after the child has notified produces nothing
// further.
func (i *ProcessInvoker) Submit(ctx *InvokeContext) error {
	if err := ctx.validate(); err != nil {
		return err
	}
	op, desc := ctx.Operation, ctx.Descriptor

	argv, err := shell.Fields(desc.Target.Command, nil)
	if err != nil || len(argv) == 0 {
		return ctx.Router.Fail(ctx.Context, op,
			fmt.Sprintf("service %s has an invalid command line: %v", desc.Name, err))
	}

	payload, err := op.Marshal()
	if err != nil {
		return ctx.Router.Fail(ctx.Context, op, err.Error())
	}

	cmd := exec.CommandContext(ctx.Context, argv[0], argv[1:]...)
	cmd.Env = append(i.baseEnv(),
		EnvOperation+"="+string(payload),
		EnvCallbackURL+"="+op.CallbackURL,
		EnvStagingLocation+"="+op.StagingLocation,
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return ctx.Router.Fail(ctx.Context, op,
			fmt.Sprintf("failed to start service %s: %v", desc.Name, err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return ctx.Router.Fail(ctx.Context, op,
			fmt.Sprintf("failed to start service %s: %v", desc.Name, err))
	}

	if err := cmd.Start(); err != nil {
		return ctx.Router.Fail(ctx.Context, op,
			fmt.Sprintf("failed to start service %s: %v", desc.Name, err))
	}
	ctx.Logger.Debug("service process started",
		"service", desc.Name, "operation", op.ID, "pid", cmd.Process.Pid)

	// Drain both streams concurrently so a chatty child cannot block exit
	// detection; Wait requires the pipes to be fully consumed first.
	var drains sync.WaitGroup
	drains.Add(2)
	go i.drain(ctx, desc.Name, op.ID, "stdout", stdout, &drains)
	go i.drain(ctx, desc.Name, op.ID, "stderr", stderr, &drains)
	drains.Wait()

	exitCode := 0
	if err := cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	// The join point of the liveness guarantee: a child that exited
	// non-zero, or exited without its notification having arrived, gets a
	// synthetic failure. The router drops it if the child did notify.
	if exitCode != 0 || !ctx.Router.Delivered(op.ID) {
		ctx.Logger.Warn("service process ended without completing",
			"service", desc.Name, "operation", op.ID, "exit_code", exitCode)
		return ctx.Router.Fail(ctx.Context, op,
			fmt.Sprintf("service %s failed with an unknown error", desc.Name))
	}

	ctx.Logger.Debug("service process completed",
		"service", desc.Name, "operation", op.ID)
	return nil
}

// baseEnv returns the environment children start from.
func (i *ProcessInvoker) baseEnv() []string {
	if i.Env != nil {
		return i.Env
	}
	return hostEnviron()
}

// drain forwards one child stream to the host log, line by line.
func (i *ProcessInvoker) drain(ctx *InvokeContext, service, opID, stream string, r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		ctx.Logger.Info("service output",
			"service", service, "operation", opID, "stream", stream, "line", scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		ctx.Logger.Warn("service output stream closed abnormally",
			"service", service, "operation", opID, "stream", stream, "error", err)
	}
}
