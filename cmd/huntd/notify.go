package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/rjoshi44/huntd/internal/notifier"
)

var notifyTestCmd = &cobra.Command{
	Use:   "notify-test",
	Short: "Send a test notification and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := setupLogger(debug)

		cfg, err := loadConfig(cfgPath)
		if err != nil {
			return err
		}
		if cfg.Notification.Type != "slack" {
			return fmt.Errorf("notify-test requires notification.type to be \"slack\" in config")
		}

		httpClient := &http.Client{Timeout: 30 * time.Second}
		n := notifier.NewSlackNotifier(cfg.Notification.WebhookURL, httpClient, logger)
		if err := notifier.SendTestMessage(n); err != nil {
			return fmt.Errorf("test message failed: %w", err)
		}
		logger.Info("test message sent successfully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(notifyTestCmd)
}
