package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"nifty-market-alerts/internal/app"
)

var (
	simulateMoves string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次行情波动并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateMoves == "" {
			return errors.New("--moves 不能为空")
		}

		moves, err := parseMoves(simulateMoves)
		if err != nil {
			return err
		}

		return getApp().SimulateAlert(cmd.Context(), moves)
	},
}

// parseMoves 解析形如 "RELIANCE:0.8,TCS:-1.2" 的涨跌幅列表。
func parseMoves(raw string) ([]app.SimulatedMove, error) {
	parts := strings.Split(raw, ",")
	moves := make([]app.SimulatedMove, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		symbol, value, found := strings.Cut(part, ":")
		if !found || symbol == "" {
			return nil, fmt.Errorf("invalid move %q, expected SYMBOL:PCHANGE", part)
		}
		pchange, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("invalid pchange in %q: %w", part, err)
		}
		moves = append(moves, app.SimulatedMove{Symbol: symbol, PChange: pchange})
	}
	if len(moves) == 0 {
		return nil, errors.New("--moves 不能为空")
	}
	return moves, nil
}

func init() {
	simulateCmd.Flags().StringVar(&simulateMoves, "moves", "", "合成样本列表，如 RELIANCE:0.8,TCS:-1.2")
}
