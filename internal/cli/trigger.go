package cli

import (
	"github.com/spf13/cobra"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Run a single poll cycle immediately",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Trigger(cmd.Context())
	},
}
