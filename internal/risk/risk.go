package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/amirphl/noice-trader/internal/strategy"
)

// ExitAction names the exit a price update triggered. The strings double as
// the lifecycle-event action names delivered to collaborators.
type ExitAction string

const (
	ExitNone        ExitAction = ""
	ExitStopLoss    ExitAction = "stop_loss"
	ExitTakeProfit1 ExitAction = "take_profit_1"
	ExitTakeProfit2 ExitAction = "take_profit_2"
)

// closeEpsilon absorbs float dust on the remaining quantity: anything below
// it is treated as fully closed and snapped to exactly zero.
const closeEpsilon = 1e-8

// Config is the construction-time risk configuration.
type Config struct {
	InitialCapital   float64
	MaxRiskPerTrade  float64 // fraction of capital risked per trade
	MaxPortfolioRisk float64 // ceiling on summed risk-at-stop / capital
	MaxDrawdown      float64 // ceiling on peak-to-current capital decline
	MaxPositions     int
	MinRiskReward    float64 // reward to TP1 over risk to stop
}

// DefaultConfig returns the stock risk limits.
func DefaultConfig(initialCapital float64) Config {
	return Config{
		InitialCapital:   initialCapital,
		MaxRiskPerTrade:  0.02,
		MaxPortfolioRisk: 0.10,
		MaxDrawdown:      0.15,
		MaxPositions:     5,
		MinRiskReward:    1.5,
	}
}

// Manager is the position ledger and risk gate. It admits, sizes, tracks,
// and unwinds positions, and derives portfolio risk and drawdown from live
// state. All access is serialized through one mutex: the engine funnels
// every mutation through a single writer, the lock covers readers from
// other goroutines (status endpoints, bookkeeping).
type Manager struct {
	mu  sync.RWMutex
	cfg Config

	currentCapital float64
	peakCapital    float64

	positions map[string]*Position
	history   []Position

	totalTrades   int
	winningTrades int

	now func() time.Time
}

// NewManager creates a risk manager with the given limits.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:            cfg,
		currentCapital: cfg.InitialCapital,
		peakCapital:    cfg.InitialCapital,
		positions:      make(map[string]*Position),
		now:            time.Now,
	}
}

// CanOpenPosition runs the admission gate in order: position-count ceiling,
// duplicate symbol, portfolio-risk ceiling, drawdown ceiling, minimum
// risk-reward. Rejections are expected outcomes, reported as a reason.
func (m *Manager) CanOpenPosition(sig *strategy.Signal) (bool, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.positions) >= m.cfg.MaxPositions {
		return false, fmt.Sprintf("max positions reached (%d)", m.cfg.MaxPositions)
	}
	if _, exists := m.positions[sig.Symbol]; exists {
		return false, fmt.Sprintf("position already open for %s", sig.Symbol)
	}
	if risk := m.portfolioRiskLocked(); risk >= m.cfg.MaxPortfolioRisk {
		return false, fmt.Sprintf("portfolio risk %.4f at ceiling %.4f", risk, m.cfg.MaxPortfolioRisk)
	}
	if dd := m.drawdownLocked(); dd >= m.cfg.MaxDrawdown {
		return false, fmt.Sprintf("drawdown %.4f at ceiling %.4f", dd, m.cfg.MaxDrawdown)
	}
	if rr := riskRewardRatio(sig); rr < m.cfg.MinRiskReward {
		return false, fmt.Sprintf("risk-reward %.2f below minimum %.2f", rr, m.cfg.MinRiskReward)
	}
	return true, ""
}

// riskRewardRatio is reward to TP1 over risk to stop.
func riskRewardRatio(sig *strategy.Signal) float64 {
	risk := math.Abs(sig.Price - sig.StopLoss)
	if risk == 0 {
		return 0
	}
	return math.Abs(sig.TakeProfit1-sig.Price) / risk
}

// RiskRewardRatio exposes the gate's ratio for logging.
func (m *Manager) RiskRewardRatio(sig *strategy.Signal) float64 {
	return riskRewardRatio(sig)
}

// PositionSize sizes a trade so at most MaxRiskPerTrade of capital is lost
// at the stop, capped so the exposure never exceeds 95% of capital (a cash
// buffer always remains). Rounded to 8 decimals, never negative.
func (m *Manager) PositionSize(sig *strategy.Signal) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	priceDiff := math.Abs(sig.Price - sig.StopLoss)
	if priceDiff == 0 || sig.Price <= 0 {
		return 0
	}
	size := m.currentCapital * m.cfg.MaxRiskPerTrade / priceDiff
	maxAffordable := m.currentCapital * 0.95 / sig.Price
	size = math.Min(size, maxAffordable)
	if size < 0 {
		return 0
	}
	return roundTo8(size)
}

func roundTo8(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}

// OpenPosition transitions a symbol from no-position to OPEN. The caller
// must have passed CanOpenPosition; a duplicate open or non-positive
// quantity is a programming invariant violation and returns an error.
func (m *Manager) OpenPosition(sig *strategy.Signal, quantity float64) (*Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if quantity <= 0 {
		return nil, fmt.Errorf("invalid quantity %v for %s", quantity, sig.Symbol)
	}
	if _, exists := m.positions[sig.Symbol]; exists {
		return nil, fmt.Errorf("position already open for %s", sig.Symbol)
	}

	stratName := ""
	if sig.Metadata != nil {
		if v, ok := sig.Metadata["strategy"].(string); ok {
			stratName = v
		}
	}

	now := m.now()
	pos := &Position{
		Symbol:            sig.Symbol,
		Side:              sig.Side(),
		EntryPrice:        sig.Price,
		Quantity:          quantity,
		RemainingQuantity: quantity,
		StopLoss:          sig.StopLoss,
		TakeProfit1:       sig.TakeProfit1,
		TakeProfit2:       sig.TakeProfit2,
		CurrentPrice:      sig.Price,
		Status:            StatusOpen,
		OpenedAt:          now,
		UpdatedAt:         now,
		Strategy:          stratName,
		SignalConfidence:  sig.Confidence,
	}
	m.positions[sig.Symbol] = pos
	m.totalTrades++

	snapshot := *pos
	return &snapshot, nil
}

// UpdatePosition applies a new price to the symbol's position and reports
// which exit, if any, the update triggered. The stop is checked before
// either target, TP1 only until it has fired, TP2 only after TP1.
func (m *Manager) UpdatePosition(symbol string, price float64) ExitAction {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[symbol]
	if !ok {
		return ExitNone
	}
	pos.updatePrice(price, m.now())

	if pos.shouldStopLoss() {
		return ExitStopLoss
	}
	if !pos.TP1Hit && pos.shouldTakeProfit(pos.TakeProfit1) {
		return ExitTakeProfit1
	}
	if pos.TP1Hit && !pos.TP2Hit && pos.shouldTakeProfit(pos.TakeProfit2) {
		return ExitTakeProfit2
	}
	return ExitNone
}

// ClosePosition unwinds fraction of the remaining quantity for the given
// reason and realizes its P&L into capital. Stop and target closes fill at
// their protective level (a breakeven stop realizes exactly zero on the
// remaining tranche); manual and forced closes fill at the last seen price.
// A TP1 close marks the position PARTIAL and moves the stop to breakeven.
func (m *Manager) ClosePosition(symbol, reason string, fraction float64) (*Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("no open position for %s", symbol)
	}
	if fraction <= 0 || fraction > 1 {
		return nil, fmt.Errorf("invalid close fraction %v for %s", fraction, symbol)
	}

	fillPrice := pos.CurrentPrice
	switch ExitAction(reason) {
	case ExitStopLoss:
		fillPrice = pos.StopLoss
	case ExitTakeProfit1:
		fillPrice = pos.TakeProfit1
	case ExitTakeProfit2:
		fillPrice = pos.TakeProfit2
	}

	closeQuantity := pos.RemainingQuantity * fraction
	realized := pos.priceDiff(fillPrice) * closeQuantity
	pos.RealizedPnL += realized
	pos.RemainingQuantity -= closeQuantity
	pos.UpdatedAt = m.now()

	// Capital moves only on realized P&L.
	m.currentCapital += realized
	if m.currentCapital > m.peakCapital {
		m.peakCapital = m.currentCapital
	}
	if realized > 0 {
		m.winningTrades++
	}

	switch ExitAction(reason) {
	case ExitTakeProfit1:
		pos.TP1Hit = true
		pos.Status = StatusPartial
		// Stop moves to breakeven and never loosens afterwards.
		pos.StopLoss = pos.EntryPrice
	case ExitTakeProfit2:
		pos.TP2Hit = true
		pos.Status = StatusClosed
	default:
		if fraction >= 1 {
			pos.Status = StatusClosed
		}
	}

	if pos.RemainingQuantity <= closeEpsilon {
		pos.RemainingQuantity = 0
		pos.Status = StatusClosed
		pos.UnrealizedPnL = 0
		m.history = append(m.history, *pos)
		delete(m.positions, symbol)
	} else {
		// Unrealized P&L now refers to the reduced quantity.
		pos.UnrealizedPnL = pos.priceDiff(pos.CurrentPrice) * pos.RemainingQuantity
	}

	snapshot := *pos
	return &snapshot, nil
}

// CloseAll force-closes every open position at its last seen price and
// returns the number closed.
func (m *Manager) CloseAll(reason string) int {
	m.mu.RLock()
	symbols := make([]string, 0, len(m.positions))
	for s := range m.positions {
		symbols = append(symbols, s)
	}
	m.mu.RUnlock()

	closed := 0
	for _, s := range symbols {
		if _, err := m.ClosePosition(s, reason, 1.0); err == nil {
			closed++
		}
	}
	return closed
}

// PortfolioRisk recomputes summed risk-at-stop over capital from live
// state; nothing is cached.
func (m *Manager) PortfolioRisk() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.portfolioRiskLocked()
}

func (m *Manager) portfolioRiskLocked() float64 {
	if m.currentCapital == 0 {
		return 0
	}
	var total float64
	for _, pos := range m.positions {
		total += pos.riskAtStop()
	}
	return total / m.currentCapital
}

// Drawdown is the fractional decline of current capital from its peak. The
// peak only ever rises.
func (m *Manager) Drawdown() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.drawdownLocked()
}

func (m *Manager) drawdownLocked() float64 {
	if m.peakCapital == 0 {
		return 0
	}
	dd := (m.peakCapital - m.currentCapital) / m.peakCapital
	return math.Max(0, dd)
}

// CurrentCapital returns the cash-equivalent capital.
func (m *Manager) CurrentCapital() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentCapital
}

// Position returns a copy of the open position for the symbol.
func (m *Manager) Position(symbol string) (Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// OpenSymbols returns the symbols with open positions.
func (m *Manager) OpenSymbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.positions))
	for s := range m.positions {
		out = append(out, s)
	}
	return out
}

// OpenPositions returns copies of all open positions.
func (m *Manager) OpenPositions() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Position, 0, len(m.positions))
	for _, pos := range m.positions {
		out = append(out, *pos)
	}
	return out
}

// History returns copies of fully closed positions.
func (m *Manager) History() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Position, len(m.history))
	copy(out, m.history)
	return out
}

// Summary returns the portfolio figures, recomputed from live state.
func (m *Manager) Summary() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var unrealized float64
	for _, pos := range m.positions {
		unrealized += pos.UnrealizedPnL
	}
	winRate := 0.0
	if m.totalTrades > 0 {
		winRate = float64(m.winningTrades) / float64(m.totalTrades) * 100
	}
	return map[string]any{
		"initial_capital":  m.cfg.InitialCapital,
		"current_capital":  m.currentCapital,
		"peak_capital":     m.peakCapital,
		"total_pnl":        m.currentCapital - m.cfg.InitialCapital,
		"unrealized_pnl":   unrealized,
		"total_trades":     m.totalTrades,
		"winning_trades":   m.winningTrades,
		"win_rate":         winRate,
		"active_positions": len(m.positions),
		"portfolio_risk":   m.portfolioRiskLocked(),
		"current_drawdown": m.drawdownLocked(),
	}
}
