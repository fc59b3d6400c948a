package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("加载默认配置失败: %v", err)
	}

	if cfg.Engine.Mode != "interval" {
		t.Fatalf("默认模式应为 interval, 实际 %s", cfg.Engine.Mode)
	}
	if cfg.Engine.Interval != 30*time.Minute {
		t.Fatalf("默认采样间隔应为 30m, 实际 %s", cfg.Engine.Interval)
	}
	if cfg.Engine.Retention != 48*time.Hour {
		t.Fatalf("默认保留期应为 48h, 实际 %s", cfg.Engine.Retention)
	}
	if cfg.Engine.Rolling.FastPct != 1.5 || cfg.Engine.Rolling.FastWindow != 30*time.Minute {
		t.Fatalf("快速阈值默认错误: %+v", cfg.Engine.Rolling)
	}
	if cfg.Engine.Rolling.SlowPct != 3.0 || cfg.Engine.Rolling.SlowWindow != 120*time.Minute {
		t.Fatalf("慢速阈值默认错误: %+v", cfg.Engine.Rolling)
	}
	if cfg.Engine.Phase.Timezone != "America/New_York" {
		t.Fatalf("默认时区错误: %s", cfg.Engine.Phase.Timezone)
	}
	if !cfg.Alerting.Enabled {
		t.Fatal("告警默认应启用")
	}
	if cfg.Alerting.Cooldown != 0 {
		t.Fatalf("冷却期默认应为 0, 实际 %s", cfg.Alerting.Cooldown)
	}
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Engine.Mode = "hourly"

	err = cfg.Validate()
	if err == nil {
		t.Fatal("未知模式应校验失败")
	}
	if !strings.Contains(err.Error(), "engine.mode") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidatePhaseMode(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Engine.Mode = "phase"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("默认 phase 配置应有效: %v", err)
	}

	cfg.Engine.Phase.CloseAt = "25:00"
	if err := cfg.Validate(); err == nil {
		t.Fatal("非法触发时间应校验失败")
	}
}

func TestValidateEnabledChannelsRequireCredentials(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg.Alerting.Email.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("启用邮件但缺少 host/from 应校验失败")
	}
	cfg.Alerting.Email.Enabled = false

	cfg.Alerting.Telegram.Enabled = true
	cfg.Alerting.Telegram.BotToken = "token"
	if err := cfg.Validate(); err == nil {
		t.Fatal("启用 Telegram 但缺少 chat_id 应校验失败")
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 100000}}
	if got := cfg.ResolveMaxPoints(0); got != 100000 {
		t.Fatalf("expected config default, got %d", got)
	}
	if got := cfg.ResolveMaxPoints(500); got != 500 {
		t.Fatalf("expected override, got %d", got)
	}
}
