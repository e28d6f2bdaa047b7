package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vivian5285/aitrade/config"
	"github.com/vivian5285/aitrade/logger"
	"github.com/vivian5285/aitrade/risk"
	"github.com/vivian5285/aitrade/testutils"
	"github.com/vivian5285/aitrade/types"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Strategies = []string{"rsi_reversal"}
	cfg.MinAgree = 1
	cfg.Indicators.FastEMA = 3
	cfg.Indicators.SlowEMA = 5
	cfg.Indicators.RSIPeriod = 5
	cfg.Indicators.BBPeriod = 5
	cfg.Indicators.VolumePeriod = 5
	cfg.Grid.Size = 2
	return cfg
}

// fallingCandles produces a strictly descending close series, enough to
// drive RSI to its floor.
func fallingCandles(n int, start, step float64) []types.Candle {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]types.Candle, n)
	price := start
	for i := range out {
		out[i] = types.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Open:     price + step,
			High:     price + step,
			Low:      price,
			Close:    price,
			Volume:   1000,
		}
		price -= step
	}
	return out
}

func flatCandles(n int, price float64) []types.Candle {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]types.Candle, n)
	for i := range out {
		out[i] = types.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Open:     price, High: price, Low: price, Close: price,
			Volume: 1000,
		}
	}
	return out
}

func newTestLoop(t *testing.T, cfg config.Config) (*Loop, *testutils.MockVenue, *MemoryRecorder) {
	t.Helper()
	venue := testutils.NewMockVenue()
	venue.SetBalance(10_000)
	rec := NewMemoryRecorder()
	loop, err := New(cfg, venue, rec, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return loop, venue, rec
}

func TestTickSkipsWhenDataUnavailable(t *testing.T) {
	loop, venue, _ := newTestLoop(t, testConfig())
	venue.DownNext()
	loop.Tick(context.Background(), time.Now())
	if venue.PlacedCount() != 0 {
		t.Fatal("a skipped tick must not place orders")
	}
	if loop.riskc != nil {
		t.Fatal("risk controller must not be created without an account snapshot")
	}
}

func TestUnanimousSignalOpensPosition(t *testing.T) {
	loop, venue, rec := newTestLoop(t, testConfig())
	venue.SetCandles(fallingCandles(30, 120, 0.8))

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	loop.Tick(context.Background(), now)
	loop.Tick(context.Background(), now.Add(15*time.Second))

	pos := loop.Position()
	if pos == nil {
		t.Fatal("oversold market should open a long position")
	}
	if pos.Side != types.Long {
		t.Fatalf("position side = %v, want LONG", pos.Side)
	}
	if pos.StopLoss >= pos.EntryPrice || pos.TakeProfit <= pos.EntryPrice {
		t.Fatalf("exit levels must bracket entry: stop %v entry %v take %v",
			pos.StopLoss, pos.EntryPrice, pos.TakeProfit)
	}

	entry := venue.LastOrder()
	if entry.Type != types.Market || entry.Side != types.Buy {
		t.Fatalf("entry order = %+v, want market buy", entry)
	}

	records := rec.Records()
	if len(records) != 1 {
		t.Fatalf("expected one trade record, got %d", len(records))
	}
	open := records[0]
	if open.Status != "OPEN" || open.PositionType != "LONG" {
		t.Fatalf("record = %+v", open)
	}
	if open.ID == "" || open.Exchange != "binance" || open.Symbol != "BTCUSDT" {
		t.Fatalf("record identity not stamped: %+v", open)
	}
	if open.StrategyID != "rsi_reversal" {
		t.Fatalf("strategy id = %q", open.StrategyID)
	}
	if open.StrategyParams == "" {
		t.Fatal("strategy params should carry the indicator config")
	}
}

func TestGridLaidBeforeFirstDecision(t *testing.T) {
	loop, venue, _ := newTestLoop(t, testConfig())
	venue.SetCandles(flatCandles(30, 100))
	loop.Tick(context.Background(), time.Now())

	// grid_size 2 means two buys and two sells
	orders := venue.PlacedOrders()
	if len(orders) != 4 {
		t.Fatalf("expected 4 grid orders, got %d", len(orders))
	}
	for _, o := range orders {
		if o.Type != types.Limit {
			t.Fatalf("grid order must be a limit order, got %+v", o)
		}
	}
	if loop.Position() != nil {
		t.Fatal("flat market must not open a position")
	}
}

func TestStopLossCrossClosesPosition(t *testing.T) {
	cfg := testConfig()
	loop, venue, rec := newTestLoop(t, cfg)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	loop.riskc = risk.NewController(cfg.Risk, now, 10_000)
	loop.position = &types.Position{
		Symbol: cfg.Symbol, Side: types.Long,
		EntryPrice: 100, Qty: 1, StopLoss: 95, TakeProfit: 120,
	}

	venue.SetCandles(flatCandles(30, 90))
	loop.Tick(context.Background(), now)

	if loop.Position() != nil {
		t.Fatal("price below stop must flatten the position")
	}
	records := rec.Records()
	if len(records) != 1 {
		t.Fatalf("expected one close record, got %d", len(records))
	}
	closeRec := records[0]
	if closeRec.Status != "CLOSED:stop_loss" {
		t.Fatalf("status = %q", closeRec.Status)
	}
	if closeRec.PnL >= -10 {
		t.Fatalf("pnl = %v, want entry loss plus commission", closeRec.PnL)
	}
	if got := loop.riskc.State().DailyTradeCount; got != 1 {
		t.Fatalf("daily trade count = %d, want 1", got)
	}
}

func TestOpposingDecisionClosesShort(t *testing.T) {
	cfg := testConfig()
	loop, venue, rec := newTestLoop(t, cfg)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	loop.riskc = risk.NewController(cfg.Risk, now, 10_000)
	loop.position = &types.Position{
		Symbol: cfg.Symbol, Side: types.Short,
		EntryPrice: 130, Qty: 1,
	}
	venue.SetCandles(fallingCandles(30, 120, 0.8))

	loop.Tick(context.Background(), now)
	loop.Tick(context.Background(), now.Add(15*time.Second))

	if loop.Position() != nil {
		t.Fatal("an opposing fused decision must flatten the position")
	}
	found := false
	for _, r := range rec.Records() {
		if strings.HasPrefix(r.Status, "CLOSED:") {
			found = true
			if r.Status != "CLOSED:opposing_signal" {
				t.Fatalf("close reason = %q", r.Status)
			}
			if r.PnL <= 0 {
				t.Fatalf("short closed into a falling market should profit, pnl = %v", r.PnL)
			}
		}
	}
	if !found {
		t.Fatal("no close record emitted")
	}
}

func TestBreachLatchesEntriesUntilDailyReset(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.MaxDailyTrades = 1
	loop, venue, _ := newTestLoop(t, cfg)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	loop.riskc = risk.NewController(cfg.Risk, now, 10_000)
	loop.riskc.RecordClose(0, 10_000) // consumes the single daily slot

	venue.SetCandles(fallingCandles(30, 120, 0.8))
	loop.Tick(context.Background(), now)
	loop.Tick(context.Background(), now.Add(15*time.Second))

	if !loop.Halted() {
		t.Fatal("a daily ceiling breach must latch entries off")
	}
	if loop.Position() != nil {
		t.Fatal("no position may open while halted")
	}
	for _, o := range venue.PlacedOrders() {
		if o.Type == types.Market {
			t.Fatalf("unexpected market order while halted: %+v", o)
		}
	}

	// UTC midnight rollover lifts the latch
	loop.Tick(context.Background(), now.Add(24*time.Hour))
	if loop.Halted() {
		t.Fatal("daily reset must clear the entry latch")
	}
}

func TestHaltSuppressesNewGridExposure(t *testing.T) {
	cfg := testConfig()
	loop, venue, _ := newTestLoop(t, cfg)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	loop.riskc = risk.NewController(cfg.Risk, now, 10_000)
	loop.halted = true

	venue.SetCandles(flatCandles(30, 100))
	loop.Tick(context.Background(), now)
	if venue.PlacedCount() != 0 {
		t.Fatalf("halted loop placed %d orders, want none", venue.PlacedCount())
	}
}

func TestHaltStillHedgesExistingGridLevels(t *testing.T) {
	cfg := testConfig()
	loop, venue, _ := newTestLoop(t, cfg)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	loop.riskc = risk.NewController(cfg.Risk, now, 10_000)

	venue.SetCandles(flatCandles(30, 100))
	loop.Tick(context.Background(), now) // lays the 4-level ladder
	if loop.grid.Generation() != 1 {
		t.Fatalf("generation = %d, want 1", loop.grid.Generation())
	}
	for _, lvl := range loop.grid.Levels() {
		venue.MarkFilled(lvl.OrderID)
	}

	loop.halted = true
	before := venue.PlacedCount()
	loop.Tick(context.Background(), now.Add(15*time.Second))

	// every fill is still hedged, but no fresh ladder replaces the spent one
	if got := venue.PlacedCount() - before; got != 4 {
		t.Fatalf("expected 4 hedge orders, got %d", got)
	}
	if loop.grid.Generation() != 1 {
		t.Fatal("a halted loop must not lay a new ladder")
	}
}

func TestGridQtyBoundedByRiskBudget(t *testing.T) {
	cfg := testConfig()
	loop, _, _ := newTestLoop(t, cfg)

	// budget fully consumed: 10k balance at 10% cap, 1000 already open
	spent := types.AccountState{
		TotalBalance:  10_000,
		OpenPositions: []types.Position{{EntryPrice: 1000, Qty: 1}},
	}
	if qty := loop.gridQty(spent, 100); qty != 0 {
		t.Fatalf("exhausted budget must size zero, got %v", qty)
	}

	// 100 of budget left; the 4-level ladder at price 100 must fit in it
	partial := types.AccountState{
		TotalBalance:  10_000,
		OpenPositions: []types.Position{{EntryPrice: 900, Qty: 1}},
	}
	qty := loop.gridQty(partial, 100)
	if qty <= 0 {
		t.Fatal("remaining budget should still size a ladder")
	}
	if ladder := qty * 100 * float64(2*cfg.Grid.Size); ladder > 100+1e-9 {
		t.Fatalf("ladder notional %v exceeds the 100 available", ladder)
	}
}

func TestCloseRecordCarriesStrategyID(t *testing.T) {
	loop, venue, rec := newTestLoop(t, testConfig())
	venue.SetCandles(fallingCandles(30, 120, 0.8))
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	loop.Tick(context.Background(), now)
	loop.Tick(context.Background(), now.Add(15*time.Second))
	if loop.Position() == nil {
		t.Fatal("expected an open long")
	}

	venue.SetCandles(flatCandles(30, 30)) // far below the stop
	loop.Tick(context.Background(), now.Add(30*time.Second))
	if loop.Position() != nil {
		t.Fatal("stop cross must flatten the position")
	}

	records := rec.Records()
	if len(records) != 2 {
		t.Fatalf("expected open and close records, got %d", len(records))
	}
	closeRec := records[1]
	if closeRec.Status != "CLOSED:stop_loss" {
		t.Fatalf("status = %q", closeRec.Status)
	}
	if closeRec.StrategyID != "rsi_reversal" {
		t.Fatalf("close record strategy id = %q, want the opening contributors", closeRec.StrategyID)
	}
}

// deadlineTap records the deadline of each data call and delays inside
// Candles, so a shared per-tick context would show identical deadlines.
type deadlineTap struct {
	*testutils.MockVenue
	mu        sync.Mutex
	deadlines []time.Time
}

func (d *deadlineTap) note(ctx context.Context) {
	if dl, ok := ctx.Deadline(); ok {
		d.mu.Lock()
		d.deadlines = append(d.deadlines, dl)
		d.mu.Unlock()
	}
}

func (d *deadlineTap) Candles(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error) {
	d.note(ctx)
	time.Sleep(5 * time.Millisecond)
	return d.MockVenue.Candles(ctx, symbol, interval, limit)
}

func (d *deadlineTap) AccountState(ctx context.Context) (types.AccountState, error) {
	d.note(ctx)
	return d.MockVenue.AccountState(ctx)
}

func TestEachGatewayCallGetsFreshTimeout(t *testing.T) {
	tap := &deadlineTap{MockVenue: testutils.NewMockVenue()}
	tap.SetBalance(10_000)
	tap.SetCandles(flatCandles(30, 100))

	loop, err := New(testConfig(), tap, NewMemoryRecorder(), logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	loop.Tick(context.Background(), time.Now())

	tap.mu.Lock()
	defer tap.mu.Unlock()
	if len(tap.deadlines) < 2 {
		t.Fatalf("recorded %d deadlines, want at least candles + account", len(tap.deadlines))
	}
	if gap := tap.deadlines[1].Sub(tap.deadlines[0]); gap < 4*time.Millisecond {
		t.Fatalf("account call deadline only %v after candles deadline; calls share one timeout", gap)
	}
}
