package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"nifty-market-alerts/internal/app"
)

var (
	statsDays int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print index volatility aggregates over a trailing window",
	RunE: func(cmd *cobra.Command, args []string) error {
		if statsDays <= 0 {
			return fmt.Errorf("--days must be greater than zero")
		}

		return getApp().Stats(cmd.Context(), app.StatsOptions{Days: statsDays})
	},
}

func init() {
	statsCmd.Flags().IntVar(&statsDays, "days", 7, "Trailing window in days")
}
