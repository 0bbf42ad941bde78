package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rjoshi44/huntd/internal/model"
	"github.com/rjoshi44/huntd/internal/store"
)

var (
	listStatus string
	listType   string
	listLimit  int
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the work queue",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show item counts per status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.NewSQLiteStore(dbPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		stats, err := s.Stats(context.Background())
		if err != nil {
			return err
		}

		total := 0
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, st := range []model.Status{
			model.StatusPending, model.StatusProcessing, model.StatusSuccess,
			model.StatusFailed, model.StatusFiltered, model.StatusSkipped,
		} {
			fmt.Fprintf(w, "%s\t%d\n", st, stats[st])
			total += stats[st]
		}
		fmt.Fprintf(w, "total\t%d\n", total)
		return w.Flush()
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queue items",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.NewSQLiteStore(dbPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		items, err := s.ListItems(context.Background(),
			model.Status(listStatus), model.EntityType(listType), listLimit)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("no items")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tSTAGE\tRETRIES\tUPDATED\tMESSAGE")
		for _, it := range items {
			msg := it.ResultMessage
			if len(msg) > 60 {
				msg = msg[:57] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				it.ID, it.EntityType, it.Status, it.Stage, it.RetryCount,
				it.UpdatedAt.Local().Format("01-02 15:04"), msg)
		}
		return w.Flush()
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a pending or processing item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.NewSQLiteStore(dbPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		if err := s.Cancel(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("cancelled %s\n", args[0])
		return nil
	},
}

func init() {
	queueListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (pending, processing, success, failed, filtered, skipped)")
	queueListCmd.Flags().StringVar(&listType, "type", "", "filter by entity type (company, job, sourceDiscovery, scrape)")
	queueListCmd.Flags().IntVar(&listLimit, "limit", 50, "max items to show")

	queueCmd.AddCommand(queueStatsCmd, queueListCmd)
	rootCmd.AddCommand(queueCmd, cancelCmd)
}
