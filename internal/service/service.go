package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"stock-alert-engine/internal/alerting"
	"stock-alert-engine/internal/config"
	"stock-alert-engine/internal/evaluator"
	"stock-alert-engine/internal/fetcher"
	"stock-alert-engine/internal/scheduler"
	"stock-alert-engine/internal/storage"
)

// AlertDispatcher delivers one alert event to its recipients.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, event alerting.Event)
}

// Engine orchestrates sampling, persistence, evaluation, and dispatch.
type Engine struct {
	scheduler  scheduler.Scheduler
	quotes     fetcher.QuoteFetcher
	store      storage.ObservationStore
	tracking   storage.TrackingStore
	alertStore storage.AlertStore
	dispatcher AlertDispatcher
	policy     evaluator.Policy
	logger     zerolog.Logger

	retention    time.Duration
	quoteTimeout time.Duration
	storeTimeout time.Duration
	workers      int
	cooldown     time.Duration
	alertsOn     bool
	locker       storage.AdvisoryLocker
	lockKey      int64
}

// New constructs the sampling engine.
func New(cfg *config.Config, sched scheduler.Scheduler, quotes fetcher.QuoteFetcher, store storage.ObservationStore, tracking storage.TrackingStore, alertStore storage.AlertStore, dispatcher AlertDispatcher, policy evaluator.Policy, logger zerolog.Logger) *Engine {
	workers := cfg.Engine.Workers
	if workers <= 0 {
		workers = 1
	}

	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Engine{
		scheduler:    sched,
		quotes:       quotes,
		store:        store,
		tracking:     tracking,
		alertStore:   alertStore,
		dispatcher:   dispatcher,
		policy:       policy,
		logger:       logger.With().Str("component", "engine").Logger(),
		retention:    cfg.Engine.Retention,
		quoteTimeout: cfg.Quotes.RequestTimeout,
		storeTimeout: cfg.Database.OpTimeout,
		workers:      workers,
		cooldown:     cfg.Alerting.Cooldown,
		alertsOn:     cfg.Alerting.Enabled,
		locker:       locker,
		lockKey:      cfg.Engine.AdvisoryLockKey,
	}
}

// Run begins the scheduled sampling loop.
func (e *Engine) Run(ctx context.Context) error {
	if e.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return e.scheduler.Run(ctx, e.RunCycle)
}

// RunCycle 执行一次完整的采样周期。The advisory lock guarantees two cycles
// never run concurrently against the same store; a trigger that fires while
// the lock is held is skipped, not queued.
func (e *Engine) RunCycle(ctx context.Context, at time.Time, phase string) error {
	// Postgres keeps timestamptz at microsecond precision; truncate up front so
	// the appended rows round-trip with the same instant the cycle carries.
	at = at.Truncate(time.Microsecond)

	unlock, proceed, err := e.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		e.logger.Warn().Time("at", at).Str("phase", phase).Msg("skip cycle because another cycle holds the lock")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return e.executeCycle(ctx, at, phase)
}

func (e *Engine) executeCycle(ctx context.Context, at time.Time, phase string) error {
	// The only fatal path in a cycle: the tracked set could not be read at all.
	// The next trigger retries naturally.
	listCtx, cancel := e.storeCtx(ctx)
	tracked, err := e.tracking.ListTrackedSymbols(listCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("list tracked symbols: %w", err)
	}

	log := e.logger.With().Time("at", at).Str("phase", phase).Logger()
	log.Info().Int("symbols", len(tracked)).Msg("cycle started")

	seen := make(map[string]bool, len(tracked))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.workers)
	for _, t := range tracked {
		if seen[t.Symbol] {
			continue
		}
		seen[t.Symbol] = true

		symbol := t.Symbol
		group.Go(func() error {
			// Per-symbol failures are handled inside; a symbol never
			// aborts the cycle or its siblings.
			e.processSymbol(groupCtx, symbol, at, phase)
			return nil
		})
	}
	_ = group.Wait()

	e.prune(ctx, at)
	log.Info().Msg("cycle finished")
	return nil
}

func (e *Engine) processSymbol(ctx context.Context, symbol string, at time.Time, phase string) {
	log := e.logger.With().Str("symbol", symbol).Str("phase", phase).Logger()

	quoteCtx, cancel := context.WithTimeout(ctx, e.timeout())
	quote, err := e.quotes.Quote(quoteCtx, symbol)
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("quote fetch failed")
		return
	}

	var phasePtr *string
	if phase != "" {
		phasePtr = &phase
	}

	obs := storage.PriceObservation{
		Symbol:     symbol,
		Price:      quote.Price,
		Phase:      phasePtr,
		ObservedAt: at,
	}

	appendCtx, cancelAppend := e.storeCtx(ctx)
	err = e.store.AppendObservation(appendCtx, obs)
	cancelAppend()
	if err != nil {
		log.Error().Err(err).Msg("failed to append observation")
		return
	}
	log.Info().Str("price", quote.Price.String()).Msg("observation recorded")

	if !e.alertsOn || e.policy == nil {
		return
	}

	evalCtx, cancelEval := e.storeCtx(ctx)
	verdicts, err := e.policy.Evaluate(evalCtx, e.store, obs)
	cancelEval()
	if err != nil {
		if errors.Is(err, evaluator.ErrZeroBaseline) {
			log.Warn().Err(err).Msg("skipping evaluation")
		} else {
			log.Error().Err(err).Msg("evaluation failed")
		}
		return
	}
	if len(verdicts) == 0 {
		return
	}

	if e.onCooldown(ctx, symbol, at, log) {
		return
	}

	for _, verdict := range verdicts {
		event := alerting.NewEvent(verdict.Symbol, verdict.Message, verdict.ChangePct, phasePtr, at)
		log.Info().Str("event_id", event.ID.String()).Str("message", event.Message).Msg("alert triggered")

		if e.alertStore != nil {
			record := storage.AlertRecord{
				EventID:   event.ID.String(),
				Symbol:    event.Symbol,
				Message:   event.Message,
				ChangePct: event.ChangePct,
				Phase:     phasePtr,
			}
			insertCtx, cancelInsert := e.storeCtx(ctx)
			if _, err := e.alertStore.InsertAlert(insertCtx, record); err != nil {
				log.Error().Err(err).Msg("failed to persist alert record")
			}
			cancelInsert()
		}

		if e.dispatcher != nil {
			e.dispatcher.Dispatch(ctx, event)
		}
	}
}

// onCooldown suppresses alerts only when a cooldown is explicitly configured.
// The default is 0: the same condition met in consecutive cycles sends again.
func (e *Engine) onCooldown(ctx context.Context, symbol string, at time.Time, log zerolog.Logger) bool {
	if e.cooldown <= 0 || e.alertStore == nil {
		return false
	}
	lookupCtx, cancel := e.storeCtx(ctx)
	last, found, err := e.alertStore.LastAlertAt(lookupCtx, symbol)
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("cooldown lookup failed")
		return false
	}
	if found && at.Sub(last) < e.cooldown {
		log.Info().Time("last_alert", last).Msg("alert suppressed by cooldown")
		return true
	}
	return false
}

func (e *Engine) prune(ctx context.Context, at time.Time) {
	cutoff := at.Add(-e.retention)
	pruneCtx, cancel := e.storeCtx(ctx)
	removed, err := e.store.PruneObservations(pruneCtx, cutoff)
	cancel()
	if err != nil {
		e.logger.Error().Err(err).Msg("prune failed")
		return
	}
	e.logger.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("old observations pruned")
}

func (e *Engine) timeout() time.Duration {
	if e.quoteTimeout > 0 {
		return e.quoteTimeout
	}
	return 10 * time.Second
}

// storeCtx bounds a single store interaction so a hung connection fails only
// the operation at hand, never the rest of the cycle.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := e.storeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (e *Engine) acquireLock(ctx context.Context) (func(), bool, error) {
	if e.lockKey == 0 || e.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := e.locker.TryAdvisoryLock(ctx, e.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
