package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/notifier"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/storage"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Deliver pending alerts once",
	Long: `Deliver pending alerts to their channels once and exit. Alerts for a
channel without configuration stay pending. "logmon serve" runs the same
delivery periodically.`,
	Args: cobra.NoArgs,
	RunE: runNotify,
}

func init() {
	rootCmd.AddCommand(notifyCmd)
}

// newDispatcher builds the dispatcher with every configured channel.
func newDispatcher(st storage.Storage) (*notifier.Dispatcher, error) {
	d := notifier.NewDispatcherWithRateLimit(st.Alerts(), notifier.RateLimitConfig{
		PerMinute: cfg.Notify.RatePerMinute,
		Enabled:   true,
	}, logger.Named("notifier"))

	if cfg.Notify.Slack.WebhookURL != "" {
		slack, err := notifier.NewSlackNotifier(notifier.SlackConfig{WebhookURL: cfg.Notify.Slack.WebhookURL})
		if err != nil {
			return nil, err
		}
		d.Register(slack)
	}
	return d, nil
}

func runNotify(cmd *cobra.Command, args []string) error {
	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()

	d, err := newDispatcher(st)
	if err != nil {
		return err
	}
	defer d.Close()

	stats, err := d.DeliverPending(cmd.Context(), cfg.Notify.BatchSize)
	if err != nil {
		return err
	}
	fmt.Printf("Sent: %d\nFailed: %d\nThrottled: %d\nUnrouted: %d\n",
		stats.Sent, stats.Failed, stats.Throttled, stats.Unrouted)
	return nil
}
