package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
)

// Track adds a symbol to a user's tracked set.
func (a *App) Track(ctx context.Context, opts TrackOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot track symbols")
	}
	if closeStore != nil {
		defer closeStore()
	}

	symbol := normalizeSymbol(opts.Symbol)
	if err := store.TrackSymbol(ctx, opts.UserID, symbol); err != nil {
		return err
	}

	a.Logger.Info().Int64("user_id", opts.UserID).Str("symbol", symbol).Msg("symbol tracked")
	return nil
}

// Untrack removes a symbol from a user's tracked set.
func (a *App) Untrack(ctx context.Context, opts TrackOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot untrack symbols")
	}
	if closeStore != nil {
		defer closeStore()
	}

	symbol := normalizeSymbol(opts.Symbol)
	if err := store.UntrackSymbol(ctx, opts.UserID, symbol); err != nil {
		return fmt.Errorf("untrack %s for user %d: %w", symbol, opts.UserID, err)
	}

	a.Logger.Info().Int64("user_id", opts.UserID).Str("symbol", symbol).Msg("symbol untracked")
	return nil
}

// Symbols prints the current tracked-symbol set.
func (a *App) Symbols(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot list symbols")
	}
	if closeStore != nil {
		defer closeStore()
	}

	tracked, err := store.ListTrackedSymbols(ctx)
	if err != nil {
		return err
	}
	if len(tracked) == 0 {
		fmt.Fprintln(os.Stdout, "no tracked symbols")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Symbol\tUser")
	for _, t := range tracked {
		fmt.Fprintf(writer, "%s\t%d\n", t.Symbol, t.OwnerID)
	}
	writer.Flush()
	return nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
