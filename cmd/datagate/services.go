// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"strings"

	"datagate/internal/config"

	"github.com/spf13/cobra"
)

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List the configured backend services",
	RunE:  runServices,
}

func runServices(cmd *cobra.Command, _ []string) error {
	registry, err := config.Load(servicesFile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, TitleStyle.Render("Configured services")+
		SubtitleStyle.Render(fmt.Sprintf(" (%d)", registry.Len())))
	for _, d := range registry.Descriptors() {
		var caps []string
		if d.Capabilities.VariableSubsetting {
			caps = append(caps, "variable subsetting")
		}
		if d.Capabilities.SpatialSubsetting {
			caps = append(caps, "spatial subsetting")
		}
		if d.Capabilities.SingleGranule {
			caps = append(caps, "single granule")
		}
		if d.Capabilities.SynchronousOnly {
			caps = append(caps, "synchronous only")
		}
		if len(caps) == 0 {
			caps = append(caps, "none")
		}

		fmt.Fprintln(out, ValueStyle.Render(d.Name)+
			SubtitleStyle.Render(" ["+d.Mechanism.String()+"]"))
		fmt.Fprintf(out, "  collections: %d  formats: %s\n",
			len(d.Collections), formatList(d.Capabilities.OutputFormats))
		fmt.Fprintf(out, "  capabilities: %s\n", strings.Join(caps, ", "))
	}
	return nil
}

func formatList(formats []string) string {
	if len(formats) == 0 {
		return "none"
	}
	return strings.Join(formats, ", ")
}
