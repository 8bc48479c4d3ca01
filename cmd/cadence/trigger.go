package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thebtf/cadence/internal/config"
	"github.com/thebtf/cadence/pkg/client"
)

var triggerURL string

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Ask a running worker to refine habits",
	Long: `Calls the worker's scheduled trigger endpoint with the configured cron
secret, the way an external scheduler does. Defaults to the local worker port.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		c := client.ForPort(cfg.WorkerPort, cfg.CronSecret)
		if triggerURL != "" {
			c = client.New(triggerURL, cfg.CronSecret, nil)
		}

		result, err := c.Refine(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "job %s: %s\n", result.JobID, result.Message)
		return nil
	},
}

func init() {
	triggerCmd.Flags().StringVar(&triggerURL, "url", "", "Worker base URL (default http://127.0.0.1:<worker port>)")
}
