package cli

import (
	"github.com/spf13/cobra"

	"stock-alert-engine/internal/app"
)

var (
	trackUserID int64
	trackTicker string
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Add a symbol to a user's tracked set",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.TrackOptions{
			UserID: trackUserID,
			Symbol: trackTicker,
		}
		return getApp().Track(cmd.Context(), opts)
	},
}

var untrackCmd = &cobra.Command{
	Use:   "untrack",
	Short: "Remove a symbol from a user's tracked set",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.TrackOptions{
			UserID: trackUserID,
			Symbol: trackTicker,
		}
		return getApp().Untrack(cmd.Context(), opts)
	},
}

var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "List the tracked-symbol set",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Symbols(cmd.Context())
	},
}

func init() {
	for _, cmd := range []*cobra.Command{trackCmd, untrackCmd} {
		cmd.Flags().Int64Var(&trackUserID, "user", 0, "User ID owning the tracked symbol")
		cmd.Flags().StringVar(&trackTicker, "symbol", "", "Ticker symbol")
	}
}
