package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownSymbol indicates the provider does not know the requested ticker.
	ErrUnknownSymbol = errors.New("fetcher: unknown symbol")
	// ErrMissingPrice indicates the provider responded without a usable price field.
	ErrMissingPrice = errors.New("fetcher: response missing market price")
)

// HTTPOptions parameterise the quote API fetcher.
type HTTPOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// HTTPFetcher pulls quotes from a Yahoo-style finance quote endpoint.
type HTTPFetcher struct {
	opts    HTTPOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewHTTPFetcher constructs a quote fetcher.
func NewHTTPFetcher(opts HTTPOptions, logger zerolog.Logger) *HTTPFetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com/v7/finance/quote"
	}

	return &HTTPFetcher{
		opts:    opts,
		logger:  logger.With().Str("component", "quote_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Quote retrieves the current market price for a symbol.
func (f *HTTPFetcher) Quote(ctx context.Context, symbol string) (Quote, error) {
	if strings.TrimSpace(symbol) == "" {
		return Quote{}, errors.New("symbol required")
	}

	endpoint := f.baseURL + "?symbols=" + url.QueryEscape(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("create quote request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(f.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "stockwatcher/1.0")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("fetch quote for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, fmt.Errorf("read quote response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return Quote{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, parseHTTPError(resp.StatusCode, payload)
	}

	var quoteRes quoteResponse
	if err := json.Unmarshal(payload, &quoteRes); err != nil {
		return Quote{}, fmt.Errorf("decode quote response: %w", err)
	}
	if quoteRes.QuoteResponse.Error != nil && quoteRes.QuoteResponse.Error.Code != "" {
		return Quote{}, fmt.Errorf("quote api error: %s", quoteRes.QuoteResponse.Error.Description)
	}

	if len(quoteRes.QuoteResponse.Result) == 0 {
		return Quote{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	result := quoteRes.QuoteResponse.Result[0]
	if result.RegularMarketPrice == nil {
		return Quote{}, fmt.Errorf("%w: %s", ErrMissingPrice, symbol)
	}

	price := decimal.NewFromFloat(*result.RegularMarketPrice)
	if price.Sign() <= 0 {
		return Quote{}, fmt.Errorf("%w: %s returned %s", ErrMissingPrice, symbol, price.String())
	}

	asOf := time.Now().UTC()
	if result.RegularMarketTime > 0 {
		asOf = time.Unix(result.RegularMarketTime, 0).UTC()
	}

	return Quote{Symbol: symbol, Price: price, AsOf: asOf}, nil
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol             string   `json:"symbol"`
			RegularMarketPrice *float64 `json:"regularMarketPrice"`
			RegularMarketTime  int64    `json:"regularMarketTime"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteResponse"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr quoteResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.QuoteResponse.Error != nil {
		if apiErr.QuoteResponse.Error.Description != "" {
			return fmt.Errorf("quote api error (%d): %s", status, apiErr.QuoteResponse.Error.Description)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("quote api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("quote api error (%d)", status)
}

var _ QuoteFetcher = (*HTTPFetcher)(nil)
