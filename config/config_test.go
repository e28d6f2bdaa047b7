package config

import (
	"os"
	"strings"
	"testing"
)

func TestValidateDefaults(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestValidateFailsOnInvertedEMAPeriods(t *testing.T) {
	cfg := Default()
	cfg.Indicators.FastEMA = 30
	cfg.Indicators.SlowEMA = 20
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for fast_ema >= slow_ema")
	}
	if !strings.Contains(err.Error(), "fast_ema") {
		t.Fatalf("error should mention fast_ema, got %v", err)
	}
}

func TestValidateFailsOnOutOfRangeRSIThreshold(t *testing.T) {
	cfg := Default()
	cfg.Indicators.RSIOverbought = 130
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for rsi_overbought > 100")
	}
}

func TestValidateReportsAllViolations(t *testing.T) {
	cfg := Default()
	cfg.Indicators.RSIPeriod = -1
	cfg.Risk.MaxDailyTrades = 0
	cfg.Grid.Size = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{"rsi_period", "max_daily_trades", "grid_size"} {
		if !strings.Contains(msg, want) {
			t.Errorf("aggregated error missing %q: %v", want, msg)
		}
	}
}

func TestValidateFailsOnNonPositiveRiskFractions(t *testing.T) {
	cfg := Default()
	cfg.Risk.PerTradeRiskFraction = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for zero per_trade_risk_fraction")
	}
	cfg = Default()
	cfg.Risk.PerTradeRiskFraction = 0.5
	cfg.Risk.MaxTotalRiskFraction = 0.1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error when per-trade exceeds total fraction")
	}
}

func TestLoadYAMLOverlaysDefaults(t *testing.T) {
	path := t.TempDir() + "/engine.yaml"
	body := "symbol: ETHUSDT\ngrid:\n  grid_size: 4\nindicators:\n  fast_ema: 9\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Symbol != "ETHUSDT" {
		t.Fatalf("symbol not overlaid: %q", cfg.Symbol)
	}
	if cfg.Grid.Size != 4 {
		t.Fatalf("grid size not overlaid: %d", cfg.Grid.Size)
	}
	if cfg.Indicators.FastEMA != 9 {
		t.Fatalf("fast_ema not overlaid: %d", cfg.Indicators.FastEMA)
	}
	// untouched fields keep their defaults
	if cfg.Indicators.SlowEMA != 26 {
		t.Fatalf("slow_ema default lost: %d", cfg.Indicators.SlowEMA)
	}
}

func TestLoadEnvOverlay(t *testing.T) {
	t.Setenv("TRADING_PAIR", "SOLUSDT")
	t.Setenv("GRID_SIZE", "6")
	t.Setenv("RSI_PERIOD", "21")
	cfg, err := LoadEnv("")
	if err != nil {
		t.Fatalf("LoadEnv failed: %v", err)
	}
	if cfg.Symbol != "SOLUSDT" || cfg.Grid.Size != 6 || cfg.Indicators.RSIPeriod != 21 {
		t.Fatalf("env overlay not applied: %+v", cfg)
	}
}

func TestLoadEnvRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("GRID_SIZE", "ten")
	if _, err := LoadEnv(""); err == nil {
		t.Fatal("expected parse error for GRID_SIZE=ten")
	}
}
