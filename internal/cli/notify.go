package cli

import (
	"github.com/spf13/cobra"
)

var testNotifyText string

var testNotifyCmd = &cobra.Command{
	Use:   "test-notify",
	Short: "Send a test message through the configured notifier",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().TestNotify(cmd.Context(), testNotifyText)
	},
}

func init() {
	testNotifyCmd.Flags().StringVar(&testNotifyText, "text", "", "Message text (defaults to a fixed test line)")
}
