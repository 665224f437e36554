package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"margin-alerts/internal/app"
)

var (
	simulateCheck  string
	simulateValue  string
	simulateActive bool
	simulateSend   bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Dry-run a check against a fixed percentage without touching the stored state",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateValue == "" {
			return errors.New("--value is required")
		}
		value, err := decimal.NewFromString(simulateValue)
		if err != nil {
			return errors.New("--value must be a number")
		}

		_, err = getApp().Simulate(cmd.Context(), app.SimulateOptions{
			Check:  simulateCheck,
			Value:  value,
			Active: simulateActive,
			Send:   simulateSend,
		})
		return err
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateCheck, "check", "afternoon", "Check to run: morning, afternoon or recurring")
	simulateCmd.Flags().StringVar(&simulateValue, "value", "", "Percentage to feed into the check")
	simulateCmd.Flags().BoolVar(&simulateActive, "active", false, "Start from an engaged high-alert mode")
	simulateCmd.Flags().BoolVar(&simulateSend, "send", false, "Deliver the messages through the configured notifier")
}
