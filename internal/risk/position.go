// Package risk
package risk

import (
	"time"

	"github.com/amirphl/noice-trader/internal/strategy"
)

// Status is the lifecycle state of a position. CLOSED is terminal.
type Status string

const (
	StatusOpen    Status = "OPEN"
	StatusPartial Status = "PARTIAL"
	StatusClosed  Status = "CLOSED"
)

// Position is one open or partially-closed market exposure. At most one
// position exists per symbol. Only the Manager mutates a Position.
type Position struct {
	Symbol            string        `json:"symbol"`
	Side              strategy.Side `json:"side"`
	EntryPrice        float64       `json:"entry_price"`
	Quantity          float64       `json:"quantity"`
	RemainingQuantity float64       `json:"remaining_quantity"`
	StopLoss          float64       `json:"stop_loss"`
	TakeProfit1       float64       `json:"take_profit_1"`
	TakeProfit2       float64       `json:"take_profit_2"`
	CurrentPrice      float64       `json:"current_price"`

	Status Status `json:"status"`
	TP1Hit bool   `json:"tp1_hit"`
	TP2Hit bool   `json:"tp2_hit"`

	OpenedAt  time.Time `json:"opened_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UnrealizedPnL float64 `json:"unrealized_pnl"`
	RealizedPnL   float64 `json:"realized_pnl"`

	Strategy         string  `json:"strategy"`
	SignalConfidence float64 `json:"signal_confidence"`
}

// updatePrice recomputes unrealized P&L from a new price.
func (p *Position) updatePrice(price float64, at time.Time) {
	p.CurrentPrice = price
	p.UpdatedAt = at
	p.UnrealizedPnL = p.priceDiff(price) * p.RemainingQuantity
}

// priceDiff is the signed per-unit gain at the given price.
func (p *Position) priceDiff(price float64) float64 {
	if p.Side == strategy.Long {
		return price - p.EntryPrice
	}
	return p.EntryPrice - price
}

// TotalPnL is realized plus unrealized P&L.
func (p *Position) TotalPnL() float64 {
	return p.RealizedPnL + p.UnrealizedPnL
}

// PnLPercent is total P&L as a percentage of the initial exposure.
func (p *Position) PnLPercent() float64 {
	initial := p.EntryPrice * p.Quantity
	if initial == 0 {
		return 0
	}
	return p.TotalPnL() / initial * 100
}

// riskAtStop is the capital at risk if the stop fires on the remaining
// quantity.
func (p *Position) riskAtStop() float64 {
	risk := p.EntryPrice - p.StopLoss
	if risk < 0 {
		risk = -risk
	}
	return risk * p.RemainingQuantity
}

// shouldStopLoss reports whether the current price has reached the stop.
func (p *Position) shouldStopLoss() bool {
	if p.Side == strategy.Long {
		return p.CurrentPrice <= p.StopLoss
	}
	return p.CurrentPrice >= p.StopLoss
}

// shouldTakeProfit reports whether the current price has reached the given
// target level.
func (p *Position) shouldTakeProfit(level float64) bool {
	if p.Side == strategy.Long {
		return p.CurrentPrice >= level
	}
	return p.CurrentPrice <= level
}

// Snapshot converts the position to a flat map for journaling.
func (p *Position) Snapshot() map[string]any {
	return map[string]any{
		"symbol":             p.Symbol,
		"side":               string(p.Side),
		"entry_price":        p.EntryPrice,
		"quantity":           p.Quantity,
		"remaining_quantity": p.RemainingQuantity,
		"stop_loss":          p.StopLoss,
		"take_profit_1":      p.TakeProfit1,
		"take_profit_2":      p.TakeProfit2,
		"current_price":      p.CurrentPrice,
		"status":             string(p.Status),
		"tp1_hit":            p.TP1Hit,
		"tp2_hit":            p.TP2Hit,
		"opened_at":          p.OpenedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":         p.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"unrealized_pnl":     p.UnrealizedPnL,
		"realized_pnl":       p.RealizedPnL,
		"strategy":           p.Strategy,
		"signal_confidence":  p.SignalConfidence,
	}
}
