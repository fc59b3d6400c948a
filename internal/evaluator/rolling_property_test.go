package evaluator

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"stock-alert-engine/internal/storage"
)

func historyWith(observations ...storage.PriceObservation) *fakeHistory {
	return &fakeHistory{recent: observations}
}

// Property: the rolling policy is symmetric under direction of the move.
// A rise and a fall of equal magnitude against the same baseline produce the
// same change percentage and the same alert decision.
func TestProperty_RollingDirectionSymmetry(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	policy := defaultRolling()
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	properties.Property("rise and fall of equal magnitude alert identically", prop.ForAll(
		func(baselineCents int64, deltaCents int64, elapsedMinutes int) bool {
			baselinePrice := decimal.New(baselineCents, -2)
			delta := decimal.New(deltaCents, -2)
			observedAt := now.Add(-time.Duration(elapsedMinutes) * time.Minute)

			baseline := storage.PriceObservation{Symbol: "AAPL", Price: baselinePrice, ObservedAt: observedAt}
			up := storage.PriceObservation{Symbol: "AAPL", Price: baselinePrice.Add(delta), ObservedAt: now}
			down := storage.PriceObservation{Symbol: "AAPL", Price: baselinePrice.Sub(delta), ObservedAt: now}

			upVerdicts, err := policy.Evaluate(context.Background(), historyWith(up, baseline), up)
			if err != nil {
				return false
			}
			downVerdicts, err := policy.Evaluate(context.Background(), historyWith(down, baseline), down)
			if err != nil {
				return false
			}

			if len(upVerdicts) != len(downVerdicts) {
				return false
			}
			if len(upVerdicts) == 1 {
				return upVerdicts[0].ChangePct.Equal(downVerdicts[0].ChangePct)
			}
			return true
		},
		gen.Int64Range(100, 1_000_000),
		gen.Int64Range(0, 5_000),
		gen.IntRange(1, 110),
	))

	properties.TestingRun(t)
}
