package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rjoshi44/huntd/internal/monitor"
	"github.com/rjoshi44/huntd/internal/store"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Browse the queue in an interactive TUI",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.NewSQLiteStore(dbPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		return monitor.Run(s)
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}
