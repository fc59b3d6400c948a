package cli

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"stock-alert-engine/internal/app"
)

var (
	simulateSymbol   string
	simulatePrevious float64
	simulateCurrent  float64
	simulateElapsed  time.Duration
	simulateEmail    string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次价格变动并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateSymbol == "" {
			return errors.New("--symbol 必须提供")
		}
		if simulatePrevious <= 0 || simulateCurrent <= 0 {
			return errors.New("--previous 与 --current 必须大于 0")
		}

		opts := app.SimulateOptions{
			Symbol:        simulateSymbol,
			PreviousPrice: decimal.NewFromFloat(simulatePrevious),
			CurrentPrice:  decimal.NewFromFloat(simulateCurrent),
			Elapsed:       simulateElapsed,
			Email:         simulateEmail,
		}
		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "", "Ticker symbol")
	simulateCmd.Flags().Float64Var(&simulatePrevious, "previous", 0, "基准价格")
	simulateCmd.Flags().Float64Var(&simulateCurrent, "current", 0, "当前价格")
	simulateCmd.Flags().DurationVar(&simulateElapsed, "elapsed", 20*time.Minute, "Time since the baseline observation")
	simulateCmd.Flags().StringVar(&simulateEmail, "email", "", "Recipient email address for the simulated alert")
}
