package evaluator

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"stock-alert-engine/internal/storage"
)

var (
	// ErrZeroBaseline indicates the comparison baseline had a non-positive price.
	// The caller logs it and moves on; no alert is possible against such a baseline.
	ErrZeroBaseline = errors.New("evaluator: baseline price is zero or negative")
)

var dec100 = decimal.NewFromInt(100)

// Verdict is a single alert decision together with the observations that produced it.
type Verdict struct {
	Symbol    string
	Message   string
	ChangePct decimal.Decimal
	Baseline  storage.PriceObservation
	Current   storage.PriceObservation
}

// HistoryReader is the read-only slice of the history store the policies need.
type HistoryReader interface {
	RecentObservations(ctx context.Context, symbol string, since time.Time, limit int) ([]storage.PriceObservation, error)
	PhasePrices(ctx context.Context, symbol string, dayStart, dayEnd time.Time) (map[string]decimal.Decimal, error)
}

// Policy decides whether a freshly appended observation warrants alerts.
// Implementations read history but never mutate it.
type Policy interface {
	Name() string
	Evaluate(ctx context.Context, history HistoryReader, current storage.PriceObservation) ([]Verdict, error)
}

// changePct computes |current - baseline| / baseline * 100.
func changePct(baseline, current decimal.Decimal) (decimal.Decimal, error) {
	if baseline.Sign() <= 0 {
		return decimal.Decimal{}, ErrZeroBaseline
	}
	return current.Sub(baseline).Abs().Div(baseline).Mul(dec100), nil
}
