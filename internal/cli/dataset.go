package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"nifty-market-alerts/internal/app"
)

var (
	datasetDays       int
	datasetSymbol     string
	datasetSession    string
	datasetMinPChange float64
	datasetCSVPath    string
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Extract flattened samples as CSV for offline analysis",
	RunE: func(cmd *cobra.Command, args []string) error {
		if datasetDays <= 0 {
			return errors.New("--days must be greater than zero")
		}

		return getApp().Dataset(cmd.Context(), app.DatasetOptions{
			Days:       datasetDays,
			Symbol:     datasetSymbol,
			Session:    datasetSession,
			MinPChange: datasetMinPChange,
			CSVPath:    datasetCSVPath,
		})
	},
}

func init() {
	datasetCmd.Flags().IntVar(&datasetDays, "days", 30, "Trailing window in days")
	datasetCmd.Flags().StringVar(&datasetSymbol, "symbol", "", "Filter by instrument symbol")
	datasetCmd.Flags().StringVar(&datasetSession, "session", "", "Filter by market session label")
	datasetCmd.Flags().Float64Var(&datasetMinPChange, "min-pchange", 0, "Keep samples with |pchange| at or above this value")
	datasetCmd.Flags().StringVar(&datasetCSVPath, "csv", "", "Path to write CSV data")
}
