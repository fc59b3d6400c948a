package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stock-alert-engine/internal/fetcher"
	"stock-alert-engine/internal/service"
	"stock-alert-engine/internal/storage"
)

// SimulateOptions describe one synthetic price movement.
type SimulateOptions struct {
	Symbol        string
	PreviousPrice decimal.Decimal
	CurrentPrice  decimal.Decimal
	Elapsed       time.Duration
	Email         string
}

// SimulateAlert 通过给定的前后价格模拟一次完整的采样与告警流程。
// Nothing touches the real database; history lives in memory.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	dispatcher := a.newDispatcher(staticRecipients{email: opts.Email})
	if dispatcher == nil {
		return errors.New("未配置任何告警通道")
	}

	policy, err := a.newPolicy()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	store := newMemStore()
	baseline := storage.PriceObservation{
		Symbol:     opts.Symbol,
		Price:      opts.PreviousPrice,
		ObservedAt: now.Add(-opts.Elapsed),
	}
	if err := store.AppendObservation(ctx, baseline); err != nil {
		return err
	}

	quotes := &staticQuoteFetcher{price: opts.CurrentPrice}
	tracking := staticTracking{symbol: opts.Symbol}

	engine := service.New(a.Config, nil, quotes, store, tracking, nil, dispatcher, policy, a.Logger)
	return engine.RunCycle(ctx, now, "")
}

type staticQuoteFetcher struct {
	price decimal.Decimal
}

func (s *staticQuoteFetcher) Quote(ctx context.Context, symbol string) (fetcher.Quote, error) {
	return fetcher.Quote{Symbol: symbol, Price: s.price, AsOf: time.Now().UTC()}, nil
}

type staticTracking struct {
	symbol string
}

func (s staticTracking) ListTrackedSymbols(ctx context.Context) ([]storage.TrackedSymbol, error) {
	return []storage.TrackedSymbol{{Symbol: s.symbol, OwnerID: 1}}, nil
}

func (s staticTracking) TrackSymbol(ctx context.Context, userID int64, symbol string) error {
	return errors.New("not supported in simulation")
}

func (s staticTracking) UntrackSymbol(ctx context.Context, userID int64, symbol string) error {
	return errors.New("not supported in simulation")
}

func (s staticTracking) RecipientsFor(ctx context.Context, symbol string) ([]storage.Recipient, error) {
	return nil, nil
}

type staticRecipients struct {
	email string
}

func (s staticRecipients) RecipientsFor(ctx context.Context, symbol string) ([]storage.Recipient, error) {
	if s.email == "" {
		return nil, nil
	}
	email := s.email
	return []storage.Recipient{{Email: &email}}, nil
}

// memStore is an in-memory ObservationStore good enough for one simulated cycle.
type memStore struct {
	mu           sync.Mutex
	observations []storage.PriceObservation
}

func newMemStore() *memStore {
	return &memStore{}
}

func (m *memStore) AppendObservation(ctx context.Context, obs storage.PriceObservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	obs.ID = int64(len(m.observations) + 1)
	m.observations = append(m.observations, obs)
	return nil
}

func (m *memStore) RecentObservations(ctx context.Context, symbol string, since time.Time, limit int) ([]storage.PriceObservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]storage.PriceObservation, 0, limit)
	for _, obs := range m.observations {
		if obs.Symbol == symbol && !obs.ObservedAt.Before(since) {
			matched = append(matched, obs)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ObservedAt.After(matched[j].ObservedAt) })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *memStore) PhasePrices(ctx context.Context, symbol string, dayStart, dayEnd time.Time) (map[string]decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prices := make(map[string]decimal.Decimal)
	for _, obs := range m.observations {
		if obs.Symbol != symbol || obs.Phase == nil {
			continue
		}
		if obs.ObservedAt.Before(dayStart) || !obs.ObservedAt.Before(dayEnd) {
			continue
		}
		prices[*obs.Phase] = obs.Price
	}
	return prices, nil
}

func (m *memStore) PruneObservations(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.observations[:0]
	var removed int64
	for _, obs := range m.observations {
		if obs.ObservedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, obs)
	}
	m.observations = kept
	return removed, nil
}

func (m *memStore) ObservationsBetween(ctx context.Context, symbol string, from, to time.Time) ([]storage.PriceObservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]storage.PriceObservation, 0)
	for _, obs := range m.observations {
		if obs.Symbol == symbol && !obs.ObservedAt.Before(from) && obs.ObservedAt.Before(to) {
			matched = append(matched, obs)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ObservedAt.Before(matched[j].ObservedAt) })
	return matched, nil
}

func (m *memStore) RecentAcrossSymbols(ctx context.Context, limit int) ([]storage.PriceObservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := append([]storage.PriceObservation(nil), m.observations...)
	sort.Slice(all, func(i, j int) bool { return all[i].ObservedAt.After(all[j].ObservedAt) })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

var _ fetcher.QuoteFetcher = (*staticQuoteFetcher)(nil)
var _ storage.ObservationStore = (*memStore)(nil)
var _ storage.TrackingStore = (staticTracking{})
