package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gopos/gopos-edge/internal/datastore/v2/repository"
	"github.com/gopos/gopos-edge/internal/push"
	"github.com/spf13/cobra"
)

var (
	pushTitle     string
	pushBody      string
	pushURL       string
	pushOlderThan time.Duration
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Send and manage push notifications",
}

var pushSendCmd = &cobra.Command{
	Use:   "send [PAYLOAD]",
	Short: "Record a notification and forward it to the external targets",
	Long: `Stores a notification built from a JSON payload, or from --title, --body
and --url, and delivers it to the configured shoutrrr targets. Pages open
on a running server see it in the notification list.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := bootstrap()
		if err != nil {
			return err
		}
		defer e.Close()

		payload, err := pushPayload(args)
		if err != nil {
			return err
		}

		bus := push.NewBus(e.settings.Push.Timeout.Std(), nil, e.log)
		external, err := e.externalNotifier()
		if err != nil {
			bus.Stop()
			return fmt.Errorf("configuring push targets: %w", err)
		}
		if external != nil {
			bus.Subscribe(external)
		}

		svc := push.NewService(&push.ServiceConfig{
			Options:    push.OptionsFromSettings(&e.settings.Push),
			Repository: repository.NewNotificationRepository(e.db.DB()),
			Bus:        bus,
			Logger:     e.log,
		})
		n, err := svc.Handle(cmd.Context(), payload, push.SourceCLI)
		// Stop drains the queue so the targets are reached before exit
		bus.Stop()
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(n, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var pushPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete notifications older than --older-than",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := bootstrap()
		if err != nil {
			return err
		}
		defer e.Close()

		svc := push.NewService(&push.ServiceConfig{
			Repository: repository.NewNotificationRepository(e.db.DB()),
			Logger:     e.log,
		})
		n, err := svc.Purge(cmd.Context(), time.Now().UTC().Add(-pushOlderThan))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d notification(s) deleted\n", n)
		return nil
	},
}

// pushPayload returns the raw payload argument, or a JSON object built
// from the flags that were set.
func pushPayload(args []string) ([]byte, error) {
	if len(args) == 1 {
		return []byte(args[0]), nil
	}
	fields := map[string]string{}
	if pushTitle != "" {
		fields["title"] = pushTitle
	}
	if pushBody != "" {
		fields["body"] = pushBody
	}
	if pushURL != "" {
		fields["url"] = pushURL
	}
	return json.Marshal(fields)
}

func init() {
	pushSendCmd.Flags().StringVar(&pushTitle, "title", "", "notification title")
	pushSendCmd.Flags().StringVar(&pushBody, "body", "", "notification body")
	pushSendCmd.Flags().StringVar(&pushURL, "url", "", "page opened when the notification is clicked")
	pushPurgeCmd.Flags().DurationVar(&pushOlderThan, "older-than", 30*24*time.Hour, "age of the notifications to delete")

	pushCmd.AddCommand(pushSendCmd, pushPurgeCmd)
	rootCmd.AddCommand(pushCmd)
}
