package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stock-alert-engine/internal/config"
	"stock-alert-engine/internal/storage"
)

// Rule pairs a percent threshold with the maximum baseline age it applies to.
type Rule struct {
	ThresholdPct decimal.Decimal
	Window       time.Duration
}

// Rolling compares the current price against the most recent prior observation
// within a lookback window. Rules are checked tightest window first; the first
// match wins. A boundary-exact elapsed time is inclusive.
type Rolling struct {
	lookback time.Duration
	rules    []Rule
}

// NewRolling builds the rolling two-point policy from config.
func NewRolling(cfg config.RollingConfig) *Rolling {
	lookback := cfg.Lookback
	if lookback <= 0 {
		lookback = 2 * time.Hour
	}
	return &Rolling{
		lookback: lookback,
		rules: []Rule{
			{ThresholdPct: decimal.NewFromFloat(cfg.FastPct), Window: cfg.FastWindow},
			{ThresholdPct: decimal.NewFromFloat(cfg.SlowPct), Window: cfg.SlowWindow},
		},
	}
}

// NewRollingWithRules builds the policy from explicit rules, tightest window first.
func NewRollingWithRules(lookback time.Duration, rules []Rule) *Rolling {
	return &Rolling{lookback: lookback, rules: rules}
}

// Name identifies the policy in logs and config.
func (r *Rolling) Name() string { return "rolling" }

// Evaluate emits at most one verdict for the movement since the previous observation.
func (r *Rolling) Evaluate(ctx context.Context, history HistoryReader, current storage.PriceObservation) ([]Verdict, error) {
	since := current.ObservedAt.Add(-r.lookback)
	recent, err := history.RecentObservations(ctx, current.Symbol, since, 2)
	if err != nil {
		return nil, fmt.Errorf("read recent observations: %w", err)
	}

	// The current observation is already appended, so the newest row is usually
	// itself. Postgres stores observed_at at microsecond precision, so the echoed
	// copy of the current row can come back fractionally older than the in-memory
	// timestamp; compare against the truncated instant so that copy is never
	// mistaken for a baseline. The baseline is the newest row strictly older.
	cutoff := current.ObservedAt.Truncate(time.Microsecond)
	var baseline *storage.PriceObservation
	for i := range recent {
		if recent[i].ObservedAt.Before(cutoff) {
			baseline = &recent[i]
			break
		}
	}
	if baseline == nil {
		return nil, nil
	}

	pct, err := changePct(baseline.Price, current.Price)
	if err != nil {
		return nil, err
	}

	elapsed := current.ObservedAt.Sub(baseline.ObservedAt)
	for _, rule := range r.rules {
		if elapsed <= rule.Window && pct.GreaterThanOrEqual(rule.ThresholdPct) {
			minutes := int(elapsed / time.Minute)
			verdict := Verdict{
				Symbol:    current.Symbol,
				Message:   fmt.Sprintf("ALERT: %s moved %s%% in %dm", current.Symbol, pct.StringFixed(2), minutes),
				ChangePct: pct,
				Baseline:  *baseline,
				Current:   current,
			}
			return []Verdict{verdict}, nil
		}
	}

	return nil, nil
}

var _ Policy = (*Rolling)(nil)
