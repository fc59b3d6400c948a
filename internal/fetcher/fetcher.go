package fetcher

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a single current-price observation from the market data provider.
type Quote struct {
	Symbol string
	Price  decimal.Decimal
	AsOf   time.Time
}

// QuoteFetcher retrieves the current market price for a ticker symbol.
type QuoteFetcher interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}
