package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"stock-alert-engine/internal/alerting"
	"stock-alert-engine/internal/config"
	"stock-alert-engine/internal/evaluator"
	"stock-alert-engine/internal/fetcher"
	"stock-alert-engine/internal/scheduler"
	"stock-alert-engine/internal/service"
	"stock-alert-engine/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newQuoteFetcher() fetcher.QuoteFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		BaseURL:   a.Config.Quotes.BaseURL,
		Timeout:   a.Config.Quotes.RequestTimeout,
		UserAgent: a.Config.Quotes.UserAgent,
	}, a.Logger)
}

func (a *App) newPolicy() (evaluator.Policy, error) {
	switch a.Config.Engine.Mode {
	case "phase":
		return evaluator.NewPhase(a.Config.Engine.Phase)
	default:
		return evaluator.NewRolling(a.Config.Engine.Rolling), nil
	}
}

func (a *App) newScheduler() (scheduler.Scheduler, error) {
	if a.Config.Engine.Mode == "phase" {
		return scheduler.NewPhaseScheduler(a.Config.Engine.Phase, a.Logger)
	}
	return scheduler.NewInterval(scheduler.IntervalOptions{
		Interval:     a.Config.Engine.Interval,
		StartupDelay: a.Config.Engine.StartupDelay,
	}, a.Logger), nil
}

func (a *App) newDispatcher(recipients alerting.RecipientSource) *alerting.Dispatcher {
	cfg := a.Config.Alerting

	var email alerting.EmailSender
	if cfg.Email.Enabled {
		email = alerting.NewEmailNotifier(cfg.Email, a.Logger)
	}

	var sms alerting.SMSSender
	if cfg.SMS.Enabled {
		sms = alerting.NewSMSNotifier(cfg.SMS, 10*time.Second, a.Logger)
	}

	var broadcast alerting.Broadcaster
	if cfg.Telegram.Enabled {
		broadcast = alerting.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, 10*time.Second, a.Logger)
	}

	if email == nil && sms == nil && broadcast == nil {
		return nil
	}
	return alerting.NewDispatcher(recipients, email, sms, broadcast, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running sampling engine.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; the engine requires the history store")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched, err := a.newScheduler()
	if err != nil {
		return err
	}

	policy, err := a.newPolicy()
	if err != nil {
		return err
	}

	quotes := a.newQuoteFetcher()

	var dispatcher service.AlertDispatcher
	if d := a.newDispatcher(store); d != nil {
		dispatcher = d
	} else if a.Config.Alerting.Enabled {
		a.Logger.Warn().Msg("alerting enabled but no channel configured; alerts will only be audited")
	}

	engine := service.New(a.Config, sched, quotes, store, store, store, dispatcher, policy, a.Logger)

	a.Logger.Info().
		Str("mode", a.Config.Engine.Mode).
		Str("policy", policy.Name()).
		Msg("starting stock alert engine")

	err = engine.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("engine terminated with error")
		return err
	}

	a.Logger.Info().Msg("engine stopped")
	return nil
}

// ExportOptions hold parameters for exporting price history.
type ExportOptions struct {
	Symbol    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Alerts bool
}

// TrackOptions configure the track/untrack admin commands.
type TrackOptions struct {
	UserID int64
	Symbol string
}

func (o TrackOptions) validate() error {
	if o.UserID <= 0 {
		return fmt.Errorf("user id must be positive")
	}
	if o.Symbol == "" {
		return fmt.Errorf("symbol required")
	}
	return nil
}
