package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"nifty-market-alerts/internal/app"
)

var (
	seriesSymbol string
	seriesDays   int
)

var seriesCmd = &cobra.Command{
	Use:   "series",
	Short: "Display the price series of one symbol",
	RunE: func(cmd *cobra.Command, args []string) error {
		if seriesSymbol == "" {
			return errors.New("--symbol is required")
		}
		if seriesDays <= 0 {
			return errors.New("--days must be greater than zero")
		}

		return getApp().Series(cmd.Context(), app.SeriesOptions{
			Symbol: seriesSymbol,
			Days:   seriesDays,
		})
	},
}

func init() {
	seriesCmd.Flags().StringVar(&seriesSymbol, "symbol", "", "Instrument symbol, e.g. RELIANCE")
	seriesCmd.Flags().IntVar(&seriesDays, "days", 7, "Trailing window in days")
}
