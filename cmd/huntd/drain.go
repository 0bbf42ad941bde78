package main

import (
	"github.com/spf13/cobra"

	"github.com/rjoshi44/huntd/internal/worker"
)

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Process everything in the queue, then exit",
	Long:  "Run the worker until the queue has no live items left, then exit. Useful for one-shot runs and cron jobs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker(worker.Options{Drain: true})
	},
}

func init() {
	rootCmd.AddCommand(drainCmd)
}
