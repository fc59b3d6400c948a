package evaluator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stock-alert-engine/internal/config"
	"stock-alert-engine/internal/storage"
)

// Phase compares the current price against fixed intraday baselines recorded
// earlier the same trading day. The open trigger only records a baseline and
// never alerts; midday compares against open; close compares against open and
// midday independently, so one close evaluation can emit two alerts.
type Phase struct {
	middayPct decimal.Decimal
	closePct  decimal.Decimal
	location  *time.Location
}

// NewPhase builds the phase-anchored policy from config.
func NewPhase(cfg config.PhaseConfig) (*Phase, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load phase timezone: %w", err)
	}
	return &Phase{
		middayPct: decimal.NewFromFloat(cfg.MiddayPct),
		closePct:  decimal.NewFromFloat(cfg.ClosePct),
		location:  loc,
	}, nil
}

// Name identifies the policy in logs and config.
func (p *Phase) Name() string { return "phase" }

// Evaluate emits zero, one, or two verdicts depending on the trigger phase and
// which baselines exist for the current calendar day.
func (p *Phase) Evaluate(ctx context.Context, history HistoryReader, current storage.PriceObservation) ([]Verdict, error) {
	if current.Phase == nil || *current.Phase == storage.PhaseOpen {
		return nil, nil
	}

	dayStart, dayEnd := p.dayBounds(current.ObservedAt)
	prices, err := history.PhasePrices(ctx, current.Symbol, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("read phase prices: %w", err)
	}

	var verdicts []Verdict
	appendVerdict := func(baselinePhase string, baselinePrice decimal.Decimal, threshold decimal.Decimal) error {
		pct, err := changePct(baselinePrice, current.Price)
		if err != nil {
			// A bad baseline disables only this comparison; the other
			// baseline of a close evaluation is still checked.
			if errors.Is(err, ErrZeroBaseline) {
				return nil
			}
			return err
		}
		if pct.LessThan(threshold) {
			return nil
		}
		phase := baselinePhase
		verdicts = append(verdicts, Verdict{
			Symbol:    current.Symbol,
			Message:   fmt.Sprintf("ALERT: %s moved %s%% from %s to %s", current.Symbol, pct.StringFixed(2), baselinePhase, *current.Phase),
			ChangePct: pct,
			Baseline: storage.PriceObservation{
				Symbol: current.Symbol,
				Price:  baselinePrice,
				Phase:  &phase,
			},
			Current: current,
		})
		return nil
	}

	switch *current.Phase {
	case storage.PhaseMidday:
		if open, ok := prices[storage.PhaseOpen]; ok {
			if err := appendVerdict(storage.PhaseOpen, open, p.middayPct); err != nil {
				return nil, err
			}
		}
	case storage.PhaseClose:
		if open, ok := prices[storage.PhaseOpen]; ok {
			if err := appendVerdict(storage.PhaseOpen, open, p.closePct); err != nil {
				return nil, err
			}
		}
		if midday, ok := prices[storage.PhaseMidday]; ok {
			if err := appendVerdict(storage.PhaseMidday, midday, p.closePct); err != nil {
				return nil, err
			}
		}
	}

	return verdicts, nil
}

func (p *Phase) dayBounds(at time.Time) (time.Time, time.Time) {
	local := at.In(p.location)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.location)
	return start, start.AddDate(0, 0, 1)
}

var _ Policy = (*Phase)(nil)
