package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rjoshi44/huntd/internal/model"
	"github.com/rjoshi44/huntd/internal/pipeline"
	"github.com/rjoshi44/huntd/internal/store"
)

var (
	submitForce         bool
	submitCompanyName   string
	submitTargetMatches int
	submitMaxSources    int
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit work to the queue",
}

var submitCompanyCmd = &cobra.Command{
	Use:   "company <name> <website>",
	Short: "Queue a company for discovery and analysis",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		item, err := pipeline.NewCompanyItem(args[0], args[1], "manual")
		if err != nil {
			return err
		}
		return submitItem(item)
	},
}

var submitJobCmd = &cobra.Command{
	Use:   "job <url>",
	Short: "Queue a single job posting for scoring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		item, err := pipeline.NewJobItem(model.JobPayload{
			URL:         args[0],
			CompanyName: submitCompanyName,
			Source:      "manual",
		})
		if err != nil {
			return err
		}
		return submitItem(item)
	},
}

var submitSourceCmd = &cobra.Command{
	Use:   "source <board-url>",
	Short: "Queue a job board for registration as a scrape source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		item, err := pipeline.NewDiscoveryItem(args[0], submitCompanyName)
		if err != nil {
			return err
		}
		return submitItem(item)
	},
}

var submitScrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Queue a scrape run over the registered sources",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		item, err := pipeline.NewScrapeItem(model.ScrapePayload{
			TargetMatches: submitTargetMatches,
			MaxSources:    submitMaxSources,
		})
		if err != nil {
			return err
		}
		return submitItem(item)
	},
}

func init() {
	submitCmd.PersistentFlags().BoolVar(&submitForce, "force", false, "cancel a live item for the same key and resubmit")
	submitJobCmd.Flags().StringVar(&submitCompanyName, "company", "", "company the posting belongs to")
	submitSourceCmd.Flags().StringVar(&submitCompanyName, "company", "", "company the board belongs to")
	submitScrapeCmd.Flags().IntVar(&submitTargetMatches, "target", 0, "stop after this many matches (0 = unbounded)")
	submitScrapeCmd.Flags().IntVar(&submitMaxSources, "max-sources", 0, "visit at most this many sources (0 = unbounded)")

	submitCmd.AddCommand(submitCompanyCmd, submitJobCmd, submitSourceCmd, submitScrapeCmd)
	rootCmd.AddCommand(submitCmd)
}

func submitItem(item *model.QueueItem) error {
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	ctx := context.Background()
	id, err := s.Enqueue(ctx, item)
	if errors.Is(err, store.ErrDuplicatePending) {
		if !submitForce {
			fmt.Printf("already queued as %s (use --force to cancel and resubmit)\n", id)
			return nil
		}
		oldID := id
		if err := s.Cancel(ctx, oldID); err != nil {
			return fmt.Errorf("cancel %s: %w", oldID, err)
		}
		id, err = s.Enqueue(ctx, item)
		if err != nil {
			return fmt.Errorf("resubmit: %w", err)
		}
		fmt.Printf("cancelled %s, queued %s %s\n", oldID, item.EntityType, id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	fmt.Printf("queued %s %s\n", item.EntityType, id)
	return nil
}
