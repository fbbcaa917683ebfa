// SPDX-License-Identifier: MPL-2.0

// Package main contains the datagate CLI: operator-facing commands over the
// service gateway core (selection, invocation, configuration checking).
package main

import (
	"context"
	"log/slog"
	"os"

	"datagate/internal/config"

	"github.com/charmbracelet/fang"
	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"

	// verbose enables debug-level diagnostics.
	verbose bool
	// servicesFile is the services configuration path.
	servicesFile string

	// rootCmd represents the base command when called without subcommands.
	rootCmd = &cobra.Command{
		Use:   "datagate",
		Short: "A routing gateway for data-transformation services",
		Long: TitleStyle.Render("datagate") + SubtitleStyle.Render(" - a routing gateway for data-transformation services") + `

datagate takes a normalized data-transformation request, selects the one
configured backend service able to fulfill it, and submits the work through
that service's execution mechanism: a direct HTTP call, a local child
process, a workflow-engine submission, or a queue publish. Every submission
produces exactly one completion notification, whichever mechanism ran it.

` + SubtitleStyle.Render("Examples:") + `
  datagate validate                 Check the services configuration
  datagate services                 List configured services
  datagate route request.json       Select a service for a request
  datagate route request.json --submit
                                    Select and dispatch the request`,
	}
)

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&servicesFile, "services", config.DefaultServicesFile,
		"services configuration file")

	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(servicesCmd)
	rootCmd.AddCommand(validateCmd)
}

// initLogging wires slog to a charmbracelet handler on stderr so structured
// diagnostics from the core packages share one stream and style.
func initLogging() {
	handler := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
	})
	if verbose {
		handler.SetLevel(charmlog.DebugLevel)
	}
	slog.SetDefault(slog.New(handler))
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once by main.
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(Version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
