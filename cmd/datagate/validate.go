// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"

	"datagate/internal/config"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the services configuration",
	Long: `Validate loads the services configuration, checks it against the embedded
schema and the per-mechanism target requirements, and reports the number of
enabled services. A non-zero exit means the configuration would be rejected
at gateway startup.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, _ []string) error {
	registry, err := config.Load(servicesFile)
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), ErrorStyle.Render("invalid: ")+err.Error())
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(),
		SuccessStyle.Render("valid")+
			SubtitleStyle.Render(fmt.Sprintf(" - %d enabled services", registry.Len())))
	return nil
}
