package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stock-alert-engine/internal/config"
	"stock-alert-engine/internal/storage"
)

// Trigger is one named wall-clock point in the trading day.
type Trigger struct {
	Label  string
	Hour   int
	Minute int
}

// PhaseScheduler fires cycles at fixed wall-clock times on business days in a
// configured time zone, threading the phase label through to the tick.
type PhaseScheduler struct {
	location     *time.Location
	businessDays map[time.Weekday]bool
	triggers     []Trigger
	logger       zerolog.Logger

	// now is swapped out in tests.
	now func() time.Time
}

// NewPhaseScheduler builds the phase scheduler from config.
func NewPhaseScheduler(cfg config.PhaseConfig, logger zerolog.Logger) (*PhaseScheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load scheduler timezone: %w", err)
	}

	days, err := parseBusinessDays(cfg.BusinessDays)
	if err != nil {
		return nil, err
	}

	triggers := make([]Trigger, 0, 3)
	for _, entry := range []struct {
		label string
		at    string
	}{
		{storage.PhaseOpen, cfg.OpenAt},
		{storage.PhaseMidday, cfg.MiddayAt},
		{storage.PhaseClose, cfg.CloseAt},
	} {
		parsed, err := time.Parse("15:04", entry.at)
		if err != nil {
			return nil, fmt.Errorf("parse %s trigger time %q: %w", entry.label, entry.at, err)
		}
		triggers = append(triggers, Trigger{Label: entry.label, Hour: parsed.Hour(), Minute: parsed.Minute()})
	}
	sort.Slice(triggers, func(i, j int) bool {
		if triggers[i].Hour != triggers[j].Hour {
			return triggers[i].Hour < triggers[j].Hour
		}
		return triggers[i].Minute < triggers[j].Minute
	})

	return &PhaseScheduler{
		location:     loc,
		businessDays: days,
		triggers:     triggers,
		logger:       logger.With().Str("component", "scheduler").Logger(),
		now:          time.Now,
	}, nil
}

// Run blocks, invoking the tick function at each phase trigger until ctx is cancelled.
func (s *PhaseScheduler) Run(ctx context.Context, tick TickFunc) error {
	for {
		at, trigger, ok := s.NextTrigger(s.now())
		if !ok {
			return fmt.Errorf("no business day found within scheduling horizon")
		}

		delay := at.Sub(s.now())
		if delay < 0 {
			delay = 0
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next", at).Str("phase", trigger.Label).Msg("waiting for next phase trigger")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		s.logger.Info().Time("at", at).Str("phase", trigger.Label).Msg("executing phase cycle")
		if err := tick(ctx, at, trigger.Label); err != nil {
			s.logger.Error().Err(err).Str("phase", trigger.Label).Msg("cycle execution failed")
		}
	}
}

// NextTrigger returns the first trigger strictly after the given instant.
func (s *PhaseScheduler) NextTrigger(after time.Time) (time.Time, Trigger, bool) {
	local := after.In(s.location)

	// Two weeks covers any run of non-business days.
	for day := 0; day < 14; day++ {
		candidate := local.AddDate(0, 0, day)
		if !s.businessDays[candidate.Weekday()] {
			continue
		}
		for _, trigger := range s.triggers {
			at := time.Date(candidate.Year(), candidate.Month(), candidate.Day(), trigger.Hour, trigger.Minute, 0, 0, s.location)
			if at.After(local) {
				return at, trigger, true
			}
		}
	}
	return time.Time{}, Trigger{}, false
}

func parseBusinessDays(names []string) (map[time.Weekday]bool, error) {
	byPrefix := map[string]time.Weekday{
		"sun": time.Sunday,
		"mon": time.Monday,
		"tue": time.Tuesday,
		"wed": time.Wednesday,
		"thu": time.Thursday,
		"fri": time.Friday,
		"sat": time.Saturday,
	}

	days := make(map[time.Weekday]bool, len(names))
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if len(key) > 3 {
			key = key[:3]
		}
		day, ok := byPrefix[key]
		if !ok {
			return nil, fmt.Errorf("unknown business day %q", name)
		}
		days[day] = true
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("business days cannot be empty")
	}
	return days, nil
}

var _ Scheduler = (*PhaseScheduler)(nil)
