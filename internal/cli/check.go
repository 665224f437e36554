package cli

import (
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:       "check <morning|afternoon|recurring>",
	Short:     "Run one check now against the persisted state",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"morning", "afternoon", "recurring"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Check(cmd.Context(), args[0])
	},
}
