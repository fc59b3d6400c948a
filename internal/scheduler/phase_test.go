package scheduler

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stock-alert-engine/internal/config"
	"stock-alert-engine/internal/storage"
)

func newTestPhaseScheduler(t *testing.T) *PhaseScheduler {
	t.Helper()
	s, err := NewPhaseScheduler(config.PhaseConfig{
		Timezone:     "America/New_York",
		BusinessDays: []string{"mon", "tue", "wed", "thu", "fri"},
		OpenAt:       "09:30",
		MiddayAt:     "12:30",
		CloseAt:      "16:00",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("构造 scheduler 失败: %v", err)
	}
	return s
}

func nyTime(t *testing.T, year int, month time.Month, day, hour, minute int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return time.Date(year, month, day, hour, minute, 0, 0, loc)
}

func TestNextTriggerSameDay(t *testing.T) {
	s := newTestPhaseScheduler(t)

	// 2026-09-02 is a Wednesday.
	at, trigger, ok := s.NextTrigger(nyTime(t, 2026, time.September, 2, 10, 0))
	if !ok {
		t.Fatal("expected a trigger")
	}
	if trigger.Label != storage.PhaseMidday {
		t.Fatalf("10:00 之后应为 midday, 实际 %s", trigger.Label)
	}
	if want := nyTime(t, 2026, time.September, 2, 12, 30); !at.Equal(want) {
		t.Fatalf("expected %s, got %s", want, at)
	}
}

func TestNextTriggerRollsToNextDay(t *testing.T) {
	s := newTestPhaseScheduler(t)

	at, trigger, ok := s.NextTrigger(nyTime(t, 2026, time.September, 2, 16, 30))
	if !ok {
		t.Fatal("expected a trigger")
	}
	if trigger.Label != storage.PhaseOpen {
		t.Fatalf("收盘后应为次日 open, 实际 %s", trigger.Label)
	}
	if want := nyTime(t, 2026, time.September, 3, 9, 30); !at.Equal(want) {
		t.Fatalf("expected %s, got %s", want, at)
	}
}

func TestNextTriggerSkipsWeekend(t *testing.T) {
	s := newTestPhaseScheduler(t)

	// 2026-09-04 is a Friday; after close the next trigger is Monday open.
	at, trigger, ok := s.NextTrigger(nyTime(t, 2026, time.September, 4, 17, 0))
	if !ok {
		t.Fatal("expected a trigger")
	}
	if trigger.Label != storage.PhaseOpen {
		t.Fatalf("expected open, got %s", trigger.Label)
	}
	if want := nyTime(t, 2026, time.September, 7, 9, 30); !at.Equal(want) {
		t.Fatalf("周末应跳过, expected %s, got %s", want, at)
	}
}

func TestNextTriggerExactTriggerTimeMovesOn(t *testing.T) {
	s := newTestPhaseScheduler(t)

	// Exactly at 09:30 the next trigger is midday, not open again.
	_, trigger, ok := s.NextTrigger(nyTime(t, 2026, time.September, 2, 9, 30))
	if !ok {
		t.Fatal("expected a trigger")
	}
	if trigger.Label != storage.PhaseMidday {
		t.Fatalf("expected midday, got %s", trigger.Label)
	}
}

func TestNextTriggerHonoursTimezone(t *testing.T) {
	s := newTestPhaseScheduler(t)

	// 13:00 UTC on 2026-09-02 is 09:00 in New York, before the open.
	at, trigger, ok := s.NextTrigger(time.Date(2026, time.September, 2, 13, 0, 0, 0, time.UTC))
	if !ok {
		t.Fatal("expected a trigger")
	}
	if trigger.Label != storage.PhaseOpen {
		t.Fatalf("expected open, got %s", trigger.Label)
	}
	if want := nyTime(t, 2026, time.September, 2, 9, 30); !at.Equal(want) {
		t.Fatalf("expected %s, got %s", want, at)
	}
}

func TestNewPhaseSchedulerRejectsBadInput(t *testing.T) {
	if _, err := NewPhaseScheduler(config.PhaseConfig{
		Timezone:     "Mars/Olympus",
		BusinessDays: []string{"mon"},
		OpenAt:       "09:30", MiddayAt: "12:30", CloseAt: "16:00",
	}, zerolog.Nop()); err == nil {
		t.Fatal("未知时区应报错")
	}

	if _, err := NewPhaseScheduler(config.PhaseConfig{
		Timezone:     "UTC",
		BusinessDays: []string{"someday"},
		OpenAt:       "09:30", MiddayAt: "12:30", CloseAt: "16:00",
	}, zerolog.Nop()); err == nil {
		t.Fatal("未知 business day 应报错")
	}

	if _, err := NewPhaseScheduler(config.PhaseConfig{
		Timezone:     "UTC",
		BusinessDays: []string{"mon"},
		OpenAt:       "9 am", MiddayAt: "12:30", CloseAt: "16:00",
	}, zerolog.Nop()); err == nil {
		t.Fatal("非法触发时间应报错")
	}
}

func TestParseBusinessDaysAcceptsFullNames(t *testing.T) {
	days, err := parseBusinessDays([]string{"Monday", "FRI"})
	if err != nil {
		t.Fatalf("parseBusinessDays: %v", err)
	}
	if !days[time.Monday] || !days[time.Friday] {
		t.Fatalf("expected monday and friday, got %v", days)
	}
	if days[time.Sunday] {
		t.Fatal("sunday should not be set")
	}
}
