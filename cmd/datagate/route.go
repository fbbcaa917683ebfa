// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"datagate/internal/config"
	"datagate/internal/invoke"
	"datagate/internal/notify"
	"datagate/internal/selection"
	"datagate/pkg/operation"
	"datagate/pkg/services"

	"github.com/spf13/cobra"
)

var (
	// acceptFormats holds --accept values: acceptable output media types in
	// preference order.
	acceptFormats []string
	// submitOp dispatches the operation after selection.
	submitOp bool

	routeCmd = &cobra.Command{
		Use:   "route <operation.json>",
		Short: "Select the backend service for an operation",
		Long: `Select reads a validated operation descriptor from a JSON file, runs the
elimination pipeline over the configured services, and prints the chosen
service. With --submit the operation is also dispatched through the chosen
service's execution mechanism; the completion notification is printed when
it arrives.`,
		Args: cobra.ExactArgs(1),
		RunE: runRoute,
	}
)

func init() {
	routeCmd.Flags().StringSliceVar(&acceptFormats, "accept", nil,
		"acceptable output media types, in preference order (wildcards allowed)")
	routeCmd.Flags().BoolVar(&submitOp, "submit", false,
		"dispatch the operation to the selected service")
}

func runRoute(cmd *cobra.Command, args []string) error {
	registry, err := config.Load(servicesFile)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read operation file: %w", err)
	}
	op, err := operation.Unmarshal(raw)
	if err != nil {
		return err
	}

	selector := selection.NewSelector(registry, slog.Default())
	desc, err := selector.Select(op, operation.RequestContext{AcceptFormats: acceptFormats})
	if err != nil {
		return err
	}

	if desc.IsNoMatch() {
		fmt.Fprintln(cmd.OutOrStdout(),
			SubtitleStyle.Render("no service matched: ")+desc.Message)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(),
			SuccessStyle.Render("selected ")+ValueStyle.Render(desc.Name)+
				SubtitleStyle.Render(" ("+desc.Mechanism.String()+")"))
		if op.Format != "" {
			fmt.Fprintln(cmd.OutOrStdout(), SubtitleStyle.Render("output format: ")+op.Format)
		}
	}

	if !submitOp {
		return nil
	}
	return dispatch(cmd, op, desc)
}

// dispatch submits the operation through the invoker registry and prints the
// completion notification once it is delivered.
func dispatch(cmd *cobra.Command, op *operation.Operation, desc *services.Descriptor) error {
	invokers := invoke.BuildRegistry(invoke.BuildRegistryOptions{})
	inv, err := invokers.Build(desc)
	if err != nil {
		return err
	}

	router := notify.NewRouter(notify.SinkFunc(
		func(_ context.Context, _ *operation.Operation, n notify.Notification) error {
			out, err := json.Marshal(n)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		}), slog.Default())

	ictx := invoke.NewInvokeContext(op, desc, router)
	ictx.Context = cmd.Context()
	slog.Info("dispatching operation", "operation", op.ID, "invoker", inv.Name())
	return inv.Submit(ictx)
}
