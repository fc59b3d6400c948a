package evaluator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stock-alert-engine/internal/config"
	"stock-alert-engine/internal/storage"
)

type fakeHistory struct {
	recent []storage.PriceObservation
	phases map[string]decimal.Decimal
}

func (f *fakeHistory) RecentObservations(ctx context.Context, symbol string, since time.Time, limit int) ([]storage.PriceObservation, error) {
	if len(f.recent) > limit {
		return f.recent[:limit], nil
	}
	return f.recent, nil
}

func (f *fakeHistory) PhasePrices(ctx context.Context, symbol string, dayStart, dayEnd time.Time) (map[string]decimal.Decimal, error) {
	return f.phases, nil
}

func defaultRolling() *Rolling {
	return NewRolling(config.RollingConfig{
		Lookback:   2 * time.Hour,
		FastPct:    1.5,
		FastWindow: 30 * time.Minute,
		SlowPct:    3.0,
		SlowWindow: 120 * time.Minute,
	})
}

func observationAt(symbol string, price float64, at time.Time) storage.PriceObservation {
	return storage.PriceObservation{
		Symbol:     symbol,
		Price:      decimal.NewFromFloat(price),
		ObservedAt: at,
	}
}

func TestRollingFastRuleFires(t *testing.T) {
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	current := observationAt("AAPL", 101.6, now)
	history := &fakeHistory{recent: []storage.PriceObservation{
		current,
		observationAt("AAPL", 100, now.Add(-20*time.Minute)),
	}}

	verdicts, err := defaultRolling().Evaluate(context.Background(), history, current)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(verdicts) != 1 {
		t.Fatalf("expected one verdict, got %d", len(verdicts))
	}
	if got := verdicts[0].ChangePct.StringFixed(2); got != "1.60" {
		t.Fatalf("expected change 1.60, got %s", got)
	}
}

func TestRollingIgnoresStoreTruncatedCurrentRow(t *testing.T) {
	// timestamptz round-trips at microsecond precision, so the stored copy of
	// the current row comes back fractionally older than the in-memory value.
	// It must not be picked as its own baseline.
	now := time.Date(2025, 6, 2, 14, 0, 0, 437, time.UTC)
	current := observationAt("AAPL", 101.6, now)
	storedCurrent := current
	storedCurrent.ObservedAt = now.Truncate(time.Microsecond)
	history := &fakeHistory{recent: []storage.PriceObservation{
		storedCurrent,
		observationAt("AAPL", 100, now.Add(-20*time.Minute)),
	}}

	verdicts, err := defaultRolling().Evaluate(context.Background(), history, current)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(verdicts) != 1 {
		t.Fatalf("1.6%% in 20m should alert despite the truncated echo, got %d verdicts", len(verdicts))
	}
	if got := verdicts[0].ChangePct.StringFixed(2); got != "1.60" {
		t.Fatalf("expected change 1.60, got %s", got)
	}
}

func TestRollingNoRuleMatches(t *testing.T) {
	// 1.6% after 40 minutes: too old for the fast rule, too small for the slow one.
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	current := observationAt("AAPL", 101.6, now)
	history := &fakeHistory{recent: []storage.PriceObservation{
		current,
		observationAt("AAPL", 100, now.Add(-40*time.Minute)),
	}}

	verdicts, err := defaultRolling().Evaluate(context.Background(), history, current)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(verdicts) != 0 {
		t.Fatalf("expected no verdicts, got %d", len(verdicts))
	}
}

func TestRollingBoundaryInclusive(t *testing.T) {
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	current := observationAt("AAPL", 101.6, now)

	exactly := &fakeHistory{recent: []storage.PriceObservation{
		current,
		observationAt("AAPL", 100, now.Add(-30*time.Minute)),
	}}
	verdicts, err := defaultRolling().Evaluate(context.Background(), exactly, current)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(verdicts) != 1 {
		t.Fatal("elapsed exactly 30m should still match the fast rule")
	}

	justOver := &fakeHistory{recent: []storage.PriceObservation{
		current,
		observationAt("AAPL", 100, now.Add(-30*time.Minute-time.Second)),
	}}
	verdicts, err = defaultRolling().Evaluate(context.Background(), justOver, current)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(verdicts) != 0 {
		t.Fatal("elapsed just over 30m must not match the fast rule")
	}
}

func TestRollingSlowRuleFires(t *testing.T) {
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	current := observationAt("AAPL", 96.9, now)
	history := &fakeHistory{recent: []storage.PriceObservation{
		current,
		observationAt("AAPL", 100, now.Add(-90*time.Minute)),
	}}

	verdicts, err := defaultRolling().Evaluate(context.Background(), history, current)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(verdicts) != 1 {
		t.Fatalf("expected one verdict, got %d", len(verdicts))
	}
}

func TestRollingInsufficientHistory(t *testing.T) {
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	current := observationAt("AAPL", 150, now)
	history := &fakeHistory{recent: []storage.PriceObservation{current}}

	verdicts, err := defaultRolling().Evaluate(context.Background(), history, current)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(verdicts) != 0 {
		t.Fatal("no baseline means no alert")
	}
}

func TestRollingZeroBaseline(t *testing.T) {
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	current := observationAt("AAPL", 101.6, now)
	history := &fakeHistory{recent: []storage.PriceObservation{
		current,
		observationAt("AAPL", 0, now.Add(-20*time.Minute)),
	}}

	_, err := defaultRolling().Evaluate(context.Background(), history, current)
	if !errors.Is(err, ErrZeroBaseline) {
		t.Fatalf("expected ErrZeroBaseline, got %v", err)
	}
}

func TestRollingDirectionSymmetry(t *testing.T) {
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	policy := defaultRolling()

	up := observationAt("AAPL", 102, now)
	down := observationAt("AAPL", 98, now)
	baseline := observationAt("AAPL", 100, now.Add(-10*time.Minute))

	upVerdicts, err := policy.Evaluate(context.Background(), &fakeHistory{recent: []storage.PriceObservation{up, baseline}}, up)
	if err != nil {
		t.Fatalf("evaluate up: %v", err)
	}
	downVerdicts, err := policy.Evaluate(context.Background(), &fakeHistory{recent: []storage.PriceObservation{down, baseline}}, down)
	if err != nil {
		t.Fatalf("evaluate down: %v", err)
	}

	if len(upVerdicts) != 1 || len(downVerdicts) != 1 {
		t.Fatalf("both directions should alert, got %d and %d", len(upVerdicts), len(downVerdicts))
	}
	if !upVerdicts[0].ChangePct.Equal(downVerdicts[0].ChangePct) {
		t.Fatalf("change pct should be symmetric: %s vs %s", upVerdicts[0].ChangePct, downVerdicts[0].ChangePct)
	}
}
