// Package engine runs the live decision loop: fetch market data, fuse
// strategy votes, size the entry through the risk controller, manage
// position exits and the passive grid, and emit trade records.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/vivian5285/aitrade/config"
	"github.com/vivian5285/aitrade/gateway"
	"github.com/vivian5285/aitrade/grid"
	"github.com/vivian5285/aitrade/indicator"
	"github.com/vivian5285/aitrade/logger"
	"github.com/vivian5285/aitrade/metrics"
	"github.com/vivian5285/aitrade/risk"
	"github.com/vivian5285/aitrade/strategy"
	"github.com/vivian5285/aitrade/types"
)

// Loop owns one symbol's trading session. It is not safe for concurrent
// use; Run is the only goroutine that touches its state.
type Loop struct {
	cfg     config.Config
	gw      gateway.Gateway
	fuser   *strategy.Fuser
	calc    *indicator.Calculator
	riskc   *risk.Controller
	grid    *grid.Manager
	rec     Recorder
	log     logger.Logger
	limiter *rate.Limiter

	params        string // indicator config as JSON, stamped on trade records
	prev          indicator.Snapshot
	havePrev      bool
	position      *types.Position
	entryStrategy string // contributors that opened the position, for its close record
	halted        bool   // entries latched off after a risk ceiling, until daily reset
}

// New wires a loop from validated configuration. The risk controller is
// created lazily on the first successful account snapshot so the daily
// peak starts from the real balance.
func New(cfg config.Config, gw gateway.Gateway, rec Recorder, log logger.Logger) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fuser, err := strategy.NewFuser(cfg.Strategies, cfg.MinAgree, cfg.Indicators)
	if err != nil {
		return nil, err
	}
	params, err := json.Marshal(cfg.Indicators)
	if err != nil {
		return nil, err
	}
	return &Loop{
		cfg:     cfg,
		gw:      gw,
		fuser:   fuser,
		calc:    indicator.New(cfg.Indicators),
		grid:    grid.NewManager(cfg.Grid, cfg.Symbol, gw, log),
		rec:     rec,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.OrderRate), 1),
		params:  string(params),
	}, nil
}

// Run ticks until the context is cancelled. Individual tick failures are
// logged and skipped; only cancellation ends the loop.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("engine_started",
		logger.String("symbol", l.cfg.Symbol),
		logger.String("interval", l.cfg.Interval),
		logger.Int("strategies", len(l.fuser.Strategies())),
	)
	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.log.Info("engine_stopped")
			return ctx.Err()
		case now := <-ticker.C:
			l.Tick(ctx, now)
		}
	}
}

// Tick runs one full evaluation pass. Exported so tests and the paper
// runner can drive the loop without a wall clock. Every gateway call
// gets its own CallTimeout budget.
func (l *Loop) Tick(ctx context.Context, now time.Time) {
	candles, err := l.fetchCandles(ctx)
	if err != nil {
		l.skipTick("candles", err)
		return
	}
	account, err := l.fetchAccount(ctx)
	if err != nil {
		l.skipTick("account", err)
		return
	}

	if l.riskc == nil {
		l.riskc = risk.NewController(l.cfg.Risk, now, account.TotalBalance)
	}
	if l.riskc.ResetIfNewDay(now) {
		l.halted = false
		l.log.Info("daily_reset")
	}

	snap, err := l.calc.Compute(candles)
	if err != nil {
		l.skipTick("indicators", err)
		return
	}
	price := snap.Close
	metrics.EquityGauge.Set(account.TotalBalance + account.UnrealizedPnL)

	l.managePosition(ctx, price, now, account)
	l.manageGrid(ctx, account, snap)

	if l.havePrev {
		if decision, ok := l.fuser.Evaluate(l.prev, snap); ok {
			l.onDecision(ctx, decision, account, snap, now)
		}
	}
	l.prev = snap
	l.havePrev = true
}

func (l *Loop) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, l.cfg.CallTimeout)
}

func (l *Loop) fetchCandles(ctx context.Context) ([]types.Candle, error) {
	cctx, cancel := l.withTimeout(ctx)
	defer cancel()
	return l.gw.Candles(cctx, l.cfg.Symbol, l.cfg.Interval, l.cfg.CandleLimit)
}

func (l *Loop) fetchAccount(ctx context.Context) (types.AccountState, error) {
	cctx, cancel := l.withTimeout(ctx)
	defer cancel()
	return l.gw.AccountState(cctx)
}

func (l *Loop) skipTick(stage string, err error) {
	metrics.TicksSkipped.Inc()
	l.log.Warn("tick_skipped", logger.String("stage", stage), logger.Err(err))
}

// managePosition closes the open position when price crosses its
// stop-loss or take-profit level.
func (l *Loop) managePosition(ctx context.Context, price float64, now time.Time, account types.AccountState) {
	if l.position == nil {
		return
	}
	if crossed, reason := l.position.ExitCrossed(price); crossed {
		l.closePosition(ctx, price, reason, now, account)
	}
}

// manageGrid polls resting levels for fills and lays a fresh ladder when
// the current one is spent. Fill polling and hedging always run; laying
// new levels is new exposure and stops while entries are latched off.
func (l *Loop) manageGrid(ctx context.Context, account types.AccountState, snap indicator.Snapshot) {
	if l.cfg.Grid.Size <= 0 {
		return
	}
	cctx, cancel := l.withTimeout(ctx)
	l.grid.CheckFills(cctx)
	cancel()
	if l.halted || !l.grid.NeedsRegrid() {
		return
	}
	qty := l.gridQty(account, snap.Close)
	if qty <= 0 {
		return
	}
	sctx, cancel := l.withTimeout(ctx)
	defer cancel()
	if err := l.grid.Setup(sctx, snap.Close, qty, snap.Volatility); err != nil {
		l.log.Error("grid_setup_failed", logger.Err(err))
	}
}

// gridQty sizes one grid level at the per-trade risk fraction, capped so
// the whole ladder fits inside the remaining risk budget, floored to the
// lot size.
func (l *Loop) gridQty(account types.AccountState, price float64) float64 {
	if price <= 0 {
		return 0
	}
	available := account.TotalBalance*l.cfg.Risk.MaxTotalRiskFraction - account.OpenNotional()
	if available <= 0 {
		return 0
	}
	qty := account.TotalBalance * l.cfg.Risk.PerTradeRiskFraction / price
	levels := float64(2 * l.cfg.Grid.Size)
	if ladderCap := available / (price * levels); qty > ladderCap {
		qty = ladderCap
	}
	lot := l.cfg.Risk.LotSize
	if lot > 0 {
		qty = math.Floor(qty/lot) * lot
	}
	return qty
}

func (l *Loop) onDecision(ctx context.Context, decision strategy.Decision,
	account types.AccountState, snap indicator.Snapshot, now time.Time) {

	// an opposing fused decision flattens the open position first
	if l.position != nil {
		opposes := (l.position.Side == types.Long && decision.Direction == types.DirSell) ||
			(l.position.Side == types.Short && decision.Direction == types.DirBuy)
		if opposes {
			l.closePosition(ctx, snap.Close, "opposing_signal", now, account)
		}
		return
	}
	if l.halted {
		return
	}

	intent, err := l.riskc.Size(decision, account, snap, now)
	if err != nil {
		var breach *risk.Breach
		if errors.As(err, &breach) {
			metrics.RiskRejections.WithLabelValues(breach.Reason).Inc()
			l.log.Warn("entry_rejected", logger.String("reason", breach.Reason))
			if latching(breach.Reason) {
				l.halted = true
				l.log.Warn("entries_halted_until_daily_reset")
			}
			return
		}
		l.log.Error("sizing_failed", logger.Err(err))
		return
	}
	l.openPosition(ctx, decision, intent, snap.Close, now)
}

// latching reports whether a breach reason disables entries for the rest
// of the trading day, as opposed to a transient shortfall.
func latching(reason string) bool {
	switch reason {
	case "max daily trades reached", "daily loss limit reached", "max drawdown reached":
		return true
	}
	return false
}

func (l *Loop) openPosition(ctx context.Context, decision strategy.Decision,
	intent types.OrderIntent, price float64, now time.Time) {

	if err := l.limiter.Wait(ctx); err != nil {
		return
	}
	order := types.Order{
		Symbol:  l.cfg.Symbol,
		Side:    intent.Side,
		Type:    types.Market,
		Qty:     intent.Qty,
		Price:   price,
		Comment: "entry " + strings.Join(decision.Contributing, "+"),
	}
	cctx, cancel := l.withTimeout(ctx)
	defer cancel()
	if _, err := l.gw.PlaceOrder(cctx, order); err != nil {
		metrics.OrdersRejected.WithLabelValues("entry").Inc()
		l.log.Warn("entry_order_rejected",
			logger.String("side", string(order.Side)),
			logger.Float64("qty", order.Qty),
			logger.Err(err),
		)
		return
	}
	metrics.OrdersSubmitted.WithLabelValues("entry").Inc()

	side := types.Long
	if intent.Side == types.Sell {
		side = types.Short
	}
	l.position = &types.Position{
		Symbol:     l.cfg.Symbol,
		Side:       side,
		EntryPrice: price,
		Qty:        intent.Qty,
		StopLoss:   intent.StopLoss,
		TakeProfit: intent.TakeProfit,
		Leverage:   intent.Leverage,
		OpenedAt:   now,
	}
	l.entryStrategy = strings.Join(decision.Contributing, "+")
	l.log.Info("position_opened",
		logger.String("side", string(side)),
		logger.Float64("price", price),
		logger.Float64("qty", intent.Qty),
		logger.Float64("stop", intent.StopLoss),
		logger.Float64("take", intent.TakeProfit),
		logger.Float64("leverage", intent.Leverage),
	)
	l.record(types.TradeRecord{
		Side:         intent.Side,
		PositionType: string(side),
		Price:        price,
		Qty:          intent.Qty,
		Timestamp:    now,
		Status:       "OPEN",
		StrategyID:   strings.Join(decision.Contributing, "+"),
	})
}

func (l *Loop) closePosition(ctx context.Context, price float64, reason string,
	now time.Time, account types.AccountState) {

	p := l.position
	if p == nil {
		return
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return
	}
	exitSide := types.Sell
	if p.Side == types.Short {
		exitSide = types.Buy
	}
	order := types.Order{
		Symbol:  p.Symbol,
		Side:    exitSide,
		Type:    types.Market,
		Qty:     p.Qty,
		Price:   price,
		Comment: "exit " + reason,
	}
	cctx, cancel := l.withTimeout(ctx)
	defer cancel()
	if _, err := l.gw.PlaceOrder(cctx, order); err != nil {
		metrics.OrdersRejected.WithLabelValues("exit").Inc()
		l.log.Error("exit_order_rejected", logger.String("reason", reason), logger.Err(err))
		return
	}
	metrics.OrdersSubmitted.WithLabelValues("exit").Inc()

	pnl := p.UnrealizedPnL(price) - l.cfg.CommissionRate*price*p.Qty
	l.riskc.RecordClose(pnl, account.TotalBalance+pnl)
	l.log.Info("position_closed",
		logger.String("reason", reason),
		logger.Float64("price", price),
		logger.Float64("pnl", pnl),
	)
	l.record(types.TradeRecord{
		Side:         exitSide,
		PositionType: string(p.Side),
		Price:        price,
		Qty:          p.Qty,
		Timestamp:    now,
		Status:       "CLOSED:" + reason,
		StrategyID:   l.entryStrategy,
		PnL:          pnl,
	})
	l.position = nil
	l.entryStrategy = ""
}

// Position returns the currently open position, or nil.
func (l *Loop) Position() *types.Position {
	if l.position == nil {
		return nil
	}
	p := *l.position
	return &p
}

// Halted reports whether new entries are latched off.
func (l *Loop) Halted() bool { return l.halted }

func (l *Loop) record(rec types.TradeRecord) {
	if l.rec == nil {
		return
	}
	rec.ID = uuid.NewString()
	rec.Exchange = l.cfg.Exchange
	rec.Symbol = l.cfg.Symbol
	rec.StrategyParams = l.params
	l.rec.Record(rec)
}
