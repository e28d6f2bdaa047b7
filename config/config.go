// Package config holds the immutable engine configuration. A Config is
// constructed once at startup, validated, and passed by value into the
// engine; nothing reads environment variables at runtime.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Indicators groups the warm-up periods and thresholds of the indicator
// library. Periods are candle counts.
type Indicators struct {
	FastEMA       int     `yaml:"fast_ema"`
	SlowEMA       int     `yaml:"slow_ema"`
	RSIPeriod     int     `yaml:"rsi_period"`
	RSIOverbought float64 `yaml:"rsi_overbought"`
	RSIOversold   float64 `yaml:"rsi_oversold"`
	BBPeriod      int     `yaml:"bb_period"`
	BBStdDev      float64 `yaml:"bb_std"`
	VolumePeriod  int     `yaml:"volume_period"`
}

// Risk groups the position-sizing and loss-limit parameters.
type Risk struct {
	PerTradeRiskFraction float64 `yaml:"per_trade_risk_fraction"`
	MaxTotalRiskFraction float64 `yaml:"max_total_risk_fraction"`
	MaxDailyTrades       int     `yaml:"max_daily_trades"`
	MaxDailyLossFraction float64 `yaml:"max_daily_loss_fraction"`
	MaxDrawdownFraction  float64 `yaml:"max_drawdown_fraction"`
	MaxLeverage          float64 `yaml:"max_leverage"`
	MinNotional          float64 `yaml:"min_notional"`
	MaxNotional          float64 `yaml:"max_notional"`
	LotSize              float64 `yaml:"lot_size"`
	StopLossMinPct       float64 `yaml:"stop_loss_min_pct"`
	StopLossMaxPct       float64 `yaml:"stop_loss_max_pct"`
	TakeProfitMinPct     float64 `yaml:"take_profit_min_pct"`
	TakeProfitMaxPct     float64 `yaml:"take_profit_max_pct"`
	HighVolatility       float64 `yaml:"high_volatility"`
	LowVolatility        float64 `yaml:"low_volatility"`
}

// Grid groups the resting-order ladder parameters. Spacing percentages are
// fractions (0.01 = 1%).
type Grid struct {
	Size            int     `yaml:"grid_size"`
	SpacingPct      float64 `yaml:"grid_spacing_pct"`
	MinSpacingPct   float64 `yaml:"grid_min_spacing_pct"`
	MaxSpacingPct   float64 `yaml:"grid_max_spacing_pct"`
	ProfitTargetPct float64 `yaml:"grid_profit_target_pct"`
}

// Config is the complete, validated parameter set for one engine instance.
type Config struct {
	Exchange     string        `yaml:"exchange"`
	Symbol       string        `yaml:"symbol"`
	Interval     string        `yaml:"interval"`
	TickInterval time.Duration `yaml:"tick_interval"`
	CallTimeout  time.Duration `yaml:"call_timeout"`
	CandleLimit  int           `yaml:"candle_limit"`

	Strategies []string `yaml:"strategies"`
	MinAgree   int      `yaml:"min_agree"`

	Indicators Indicators `yaml:"indicators"`
	Risk       Risk       `yaml:"risk"`
	Grid       Grid       `yaml:"grid"`

	CommissionRate float64 `yaml:"commission_rate"`

	// Orders placed per second, live path only.
	OrderRate float64 `yaml:"order_rate"`

	LogPath string `yaml:"log_path"`
}

// Default returns the stock parameter set.
func Default() Config {
	return Config{
		Exchange:     "binance",
		Symbol:       "BTCUSDT",
		Interval:     "1m",
		TickInterval: 15 * time.Second,
		CallTimeout:  10 * time.Second,
		CandleLimit:  100,
		Strategies:   []string{"trend_cross", "rsi_reversal", "band_breakout"},
		MinAgree:     2,
		Indicators: Indicators{
			FastEMA:       12,
			SlowEMA:       26,
			RSIPeriod:     14,
			RSIOverbought: 70,
			RSIOversold:   30,
			BBPeriod:      20,
			BBStdDev:      2.0,
			VolumePeriod:  20,
		},
		Risk: Risk{
			PerTradeRiskFraction: 0.02,
			MaxTotalRiskFraction: 0.10,
			MaxDailyTrades:       10,
			MaxDailyLossFraction: 0.05,
			MaxDrawdownFraction:  0.20,
			MaxLeverage:          10,
			MinNotional:          10,
			MaxNotional:          100_000,
			LotSize:              0.001,
			StopLossMinPct:       0.01,
			StopLossMaxPct:       0.05,
			TakeProfitMinPct:     0.02,
			TakeProfitMaxPct:     0.10,
			HighVolatility:       0.02,
			LowVolatility:        0.005,
		},
		Grid: Grid{
			Size:            10,
			SpacingPct:      0.002,
			MinSpacingPct:   0.001,
			MaxSpacingPct:   0.01,
			ProfitTargetPct: 0.003,
		},
		CommissionRate: 0.001,
		OrderRate:      5,
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadEnv overlays dotenv-style variables (TRADING_PAIR, GRID_SIZE, ...)
// over the defaults. A missing .env file is not an error; exported
// variables still apply.
func LoadEnv(envPath string) (Config, error) {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}
	cfg := Default()
	if v := os.Getenv("TRADING_PAIR"); v != "" {
		cfg.Symbol = v
	}
	if v := os.Getenv("EXCHANGE"); v != "" {
		cfg.Exchange = v
	}
	var err error
	err = multierr.Append(err, envInt("GRID_SIZE", &cfg.Grid.Size))
	err = multierr.Append(err, envFloat("GRID_SPACING", &cfg.Grid.SpacingPct))
	err = multierr.Append(err, envInt("FAST_EMA", &cfg.Indicators.FastEMA))
	err = multierr.Append(err, envInt("SLOW_EMA", &cfg.Indicators.SlowEMA))
	err = multierr.Append(err, envInt("RSI_PERIOD", &cfg.Indicators.RSIPeriod))
	err = multierr.Append(err, envFloat("RSI_OVERBOUGHT", &cfg.Indicators.RSIOverbought))
	err = multierr.Append(err, envFloat("RSI_OVERSOLD", &cfg.Indicators.RSIOversold))
	err = multierr.Append(err, envInt("BB_PERIOD", &cfg.Indicators.BBPeriod))
	err = multierr.Append(err, envFloat("BB_STD", &cfg.Indicators.BBStdDev))
	err = multierr.Append(err, envInt("MAX_DAILY_TRADES", &cfg.Risk.MaxDailyTrades))
	err = multierr.Append(err, envFloat("MAX_DAILY_LOSS_PERCENTAGE", &cfg.Risk.MaxDailyLossFraction))
	err = multierr.Append(err, envFloat("MAX_DRAWDOWN", &cfg.Risk.MaxDrawdownFraction))
	err = multierr.Append(err, envFloat("MAX_LEVERAGE", &cfg.Risk.MaxLeverage))
	err = multierr.Append(err, envFloat("COMMISSION_RATE", &cfg.CommissionRate))
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

// Validate checks every field and reports all violations at once, so the
// operator sees the full list instead of fixing one field per restart.
func (c *Config) Validate() error {
	var errs error

	if c.Symbol == "" {
		errs = multierr.Append(errs, errors.New("symbol must be set"))
	}
	if c.TickInterval <= 0 {
		errs = multierr.Append(errs, errors.New("tick_interval must be positive"))
	}
	if c.CallTimeout <= 0 {
		errs = multierr.Append(errs, errors.New("call_timeout must be positive"))
	}
	if c.CandleLimit <= 0 {
		errs = multierr.Append(errs, errors.New("candle_limit must be positive"))
	}
	if len(c.Strategies) == 0 {
		errs = multierr.Append(errs, errors.New("at least one strategy must be enabled"))
	}
	if c.MinAgree < 1 {
		errs = multierr.Append(errs, errors.New("min_agree must be >= 1"))
	}

	in := c.Indicators
	if in.FastEMA <= 0 {
		errs = multierr.Append(errs, errors.New("fast_ema must be positive"))
	}
	if in.SlowEMA <= 0 {
		errs = multierr.Append(errs, errors.New("slow_ema must be positive"))
	}
	if in.FastEMA > 0 && in.SlowEMA > 0 && in.FastEMA >= in.SlowEMA {
		errs = multierr.Append(errs, fmt.Errorf("fast_ema (%d) must be shorter than slow_ema (%d)", in.FastEMA, in.SlowEMA))
	}
	if in.RSIPeriod <= 0 {
		errs = multierr.Append(errs, errors.New("rsi_period must be positive"))
	}
	if in.RSIOverbought < 0 || in.RSIOverbought > 100 {
		errs = multierr.Append(errs, fmt.Errorf("rsi_overbought (%v) must be within [0,100]", in.RSIOverbought))
	}
	if in.RSIOversold < 0 || in.RSIOversold > 100 {
		errs = multierr.Append(errs, fmt.Errorf("rsi_oversold (%v) must be within [0,100]", in.RSIOversold))
	}
	if in.RSIOversold >= in.RSIOverbought {
		errs = multierr.Append(errs, errors.New("rsi_oversold must be below rsi_overbought"))
	}
	if in.BBPeriod <= 0 {
		errs = multierr.Append(errs, errors.New("bb_period must be positive"))
	}
	if in.BBStdDev <= 0 {
		errs = multierr.Append(errs, errors.New("bb_std must be positive"))
	}
	if in.VolumePeriod <= 0 {
		errs = multierr.Append(errs, errors.New("volume_period must be positive"))
	}

	r := c.Risk
	if r.PerTradeRiskFraction <= 0 || r.PerTradeRiskFraction > 1 {
		errs = multierr.Append(errs, fmt.Errorf("per_trade_risk_fraction (%v) must be in (0,1]", r.PerTradeRiskFraction))
	}
	if r.MaxTotalRiskFraction <= 0 || r.MaxTotalRiskFraction > 1 {
		errs = multierr.Append(errs, fmt.Errorf("max_total_risk_fraction (%v) must be in (0,1]", r.MaxTotalRiskFraction))
	}
	if r.PerTradeRiskFraction > r.MaxTotalRiskFraction {
		errs = multierr.Append(errs, errors.New("per_trade_risk_fraction cannot exceed max_total_risk_fraction"))
	}
	if r.MaxDailyTrades <= 0 {
		errs = multierr.Append(errs, errors.New("max_daily_trades must be positive"))
	}
	if r.MaxDailyLossFraction <= 0 || r.MaxDailyLossFraction > 1 {
		errs = multierr.Append(errs, errors.New("max_daily_loss_fraction must be in (0,1]"))
	}
	if r.MaxDrawdownFraction <= 0 || r.MaxDrawdownFraction > 1 {
		errs = multierr.Append(errs, errors.New("max_drawdown_fraction must be in (0,1]"))
	}
	if r.MaxLeverage < 1 {
		errs = multierr.Append(errs, errors.New("max_leverage must be >= 1"))
	}
	if r.MinNotional <= 0 {
		errs = multierr.Append(errs, errors.New("min_notional must be positive"))
	}
	if r.MaxNotional < r.MinNotional {
		errs = multierr.Append(errs, errors.New("max_notional must be >= min_notional"))
	}
	if r.LotSize <= 0 {
		errs = multierr.Append(errs, errors.New("lot_size must be positive"))
	}
	if r.StopLossMinPct <= 0 || r.StopLossMaxPct < r.StopLossMinPct {
		errs = multierr.Append(errs, errors.New("stop loss bounds must satisfy 0 < min <= max"))
	}
	if r.TakeProfitMinPct <= 0 || r.TakeProfitMaxPct < r.TakeProfitMinPct {
		errs = multierr.Append(errs, errors.New("take profit bounds must satisfy 0 < min <= max"))
	}
	if r.LowVolatility <= 0 || r.HighVolatility <= r.LowVolatility {
		errs = multierr.Append(errs, errors.New("volatility thresholds must satisfy 0 < low < high"))
	}

	g := c.Grid
	if g.Size <= 0 {
		errs = multierr.Append(errs, errors.New("grid_size must be positive"))
	}
	if g.SpacingPct <= 0 {
		errs = multierr.Append(errs, errors.New("grid_spacing_pct must be positive"))
	}
	if g.MinSpacingPct <= 0 || g.MaxSpacingPct < g.MinSpacingPct {
		errs = multierr.Append(errs, errors.New("grid spacing bounds must satisfy 0 < min <= max"))
	}
	if g.ProfitTargetPct <= 0 {
		errs = multierr.Append(errs, errors.New("grid_profit_target_pct must be positive"))
	}

	if c.CommissionRate < 0 || c.CommissionRate > 0.1 {
		errs = multierr.Append(errs, fmt.Errorf("commission_rate (%v) out of realistic range", c.CommissionRate))
	}
	if c.OrderRate <= 0 {
		errs = multierr.Append(errs, errors.New("order_rate must be positive"))
	}
	return errs
}
