package types

import "time"

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Direction is the outcome of a strategy evaluation or a fused decision.
type Direction string

const (
	DirBuy  Direction = "BUY"
	DirSell Direction = "SELL"
	DirNone Direction = "NONE"
)

// PositionSide distinguishes long/short exposure, independent of order side.
type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

// OrderType selects between resting limit orders and immediate market fills.
type OrderType string

const (
	Limit  OrderType = "LIMIT"
	Market OrderType = "MARKET"
)

// OrderStatus is the gateway-reported lifecycle state of an order.
type OrderStatus string

const (
	StatusResting   OrderStatus = "RESTING"
	StatusFilled    OrderStatus = "FILLED"
	StatusRejected  OrderStatus = "REJECTED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// Candle is a single OHLCV bar. Sequences are ordered by strictly
// increasing OpenTime, no duplicates, and immutable once produced.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Order is the wire-agnostic order request handed to the gateway.
type Order struct {
	Symbol string
	Side   Side
	Type   OrderType
	Qty    float64
	Price  float64 // limit price; ignored for market orders
	// meta
	Comment string
}

// OrderIntent is the risk controller's bounded proposal for a new entry.
type OrderIntent struct {
	Symbol     string
	Side       Side
	Qty        float64
	Notional   float64
	Leverage   float64
	StopLoss   float64
	TakeProfit float64
	Strength   float64
}

// Position is an open exposure owned by the risk controller. It is created
// on fill and closed when price crosses StopLoss/TakeProfit or an opposing
// fused decision arrives.
type Position struct {
	Symbol     string
	Side       PositionSide
	EntryPrice float64
	Qty        float64
	StopLoss   float64
	TakeProfit float64
	Leverage   float64
	OpenedAt   time.Time
}

// Notional returns the position's entry-price exposure.
func (p Position) Notional() float64 { return p.EntryPrice * p.Qty }

// UnrealizedPnL marks the position against the given price.
func (p Position) UnrealizedPnL(price float64) float64 {
	if p.Side == Long {
		return (price - p.EntryPrice) * p.Qty
	}
	return (p.EntryPrice - price) * p.Qty
}

// ExitCrossed reports whether the price has crossed the position's
// stop-loss or take-profit level, and which one fired.
func (p Position) ExitCrossed(price float64) (bool, string) {
	if p.Side == Long {
		if p.StopLoss > 0 && price <= p.StopLoss {
			return true, "stop_loss"
		}
		if p.TakeProfit > 0 && price >= p.TakeProfit {
			return true, "take_profit"
		}
		return false, ""
	}
	if p.StopLoss > 0 && price >= p.StopLoss {
		return true, "stop_loss"
	}
	if p.TakeProfit > 0 && price <= p.TakeProfit {
		return true, "take_profit"
	}
	return false, ""
}

// AccountState is a read-only snapshot supplied by the market-data gateway;
// the engine never mutates it directly.
type AccountState struct {
	TotalBalance     float64
	AvailableBalance float64
	UnrealizedPnL    float64
	OpenPositions    []Position
}

// OpenNotional sums the entry notional of all open positions.
func (a AccountState) OpenNotional() float64 {
	total := 0.0
	for _, p := range a.OpenPositions {
		total += p.Notional()
	}
	return total
}

// TradeRecord is the flat open/close event emitted for every executed
// trade. Persistence and display are external consumers.
type TradeRecord struct {
	ID             string    `json:"id"`
	Exchange       string    `json:"exchange"`
	Symbol         string    `json:"symbol"`
	Side           Side      `json:"side"`
	PositionType   string    `json:"position_type"`
	Price          float64   `json:"price"`
	Qty            float64   `json:"quantity"`
	Timestamp      time.Time `json:"timestamp"`
	Status         string    `json:"status"`
	StrategyID     string    `json:"strategy_id"`
	StrategyParams string    `json:"strategy_params"`
	PnL            float64   `json:"pnl"`
}
