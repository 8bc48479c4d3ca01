package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var refineCmd = &cobra.Command{
	Use:   "refine",
	Short: "Run one habit refinement batch and exit",
	Long: `Runs one refinement batch directly against the database, for use from an
external scheduler. The run claim still applies: if another run is in
progress the command fails without creating a job row.`,
	RunE: runRefine,
}

func runRefine(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.orchestrator.Run(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "job %s: %s\n", result.JobID, result.Message())
	for _, u := range result.Users {
		if u.Error != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", u.UserID, u.Error)
		}
	}
	return nil
}
