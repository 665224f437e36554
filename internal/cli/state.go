package cli

import (
	"github.com/spf13/cobra"

	"margin-alerts/internal/app"
)

var stateFormat string

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset the persisted alert state",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted alert state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ShowState(cmd.Context(), app.StateFormat(stateFormat))
	},
}

var stateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Overwrite the persisted alert state with defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ResetState(cmd.Context())
	},
}

func init() {
	stateShowCmd.Flags().StringVar(&stateFormat, "format", string(app.FormatTable), "Output format: table, json or yaml")
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateResetCmd)
}
