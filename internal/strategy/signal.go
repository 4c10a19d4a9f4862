// Package strategy
package strategy

import (
	"errors"
	"time"
)

// Kind is the directional intent of a signal.
type Kind string

const (
	Buy        Kind = "BUY"
	Sell       Kind = "SELL"
	Hold       Kind = "HOLD"
	CloseLong  Kind = "CLOSE_LONG"
	CloseShort Kind = "CLOSE_SHORT"
)

// IsEntry reports whether the kind opens a new position.
func (k Kind) IsEntry() bool {
	return k == Buy || k == Sell
}

// IsExit reports whether the kind closes an existing position.
func (k Kind) IsExit() bool {
	return k == CloseLong || k == CloseShort
}

// Side is the direction of an exposure.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Signal is a directional trade recommendation with price and protective
// levels. Produced once per strategy update at most; consumed exactly once
// by the trading engine.
type Signal struct {
	Kind        Kind           `json:"kind"`
	Symbol      string         `json:"symbol"`
	Price       float64        `json:"price"`
	StopLoss    float64        `json:"stop_loss"`
	TakeProfit1 float64        `json:"take_profit_1"`
	TakeProfit2 float64        `json:"take_profit_2"`
	Confidence  float64        `json:"confidence"`
	Reason      string         `json:"reason"`
	Time        time.Time      `json:"time"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Validate checks that an entry signal is executable. Exit and hold signals
// only need a symbol.
func (s *Signal) Validate() error {
	if s.Symbol == "" {
		return errors.New("signal symbol cannot be empty")
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return errors.New("signal confidence must be in [0,1]")
	}
	if !s.Kind.IsEntry() {
		return nil
	}
	if s.Price <= 0 {
		return errors.New("signal price must be positive")
	}
	if s.StopLoss <= 0 {
		return errors.New("signal stop loss must be positive")
	}
	if s.StopLoss == s.Price {
		return errors.New("signal stop loss cannot equal entry price")
	}
	if s.TakeProfit1 <= 0 || s.TakeProfit2 <= 0 {
		return errors.New("signal take profits must be positive")
	}
	return nil
}

// Side returns the exposure direction an entry signal opens.
func (s *Signal) Side() Side {
	if s.Kind == Sell {
		return Short
	}
	return Long
}

// Snapshot converts the signal to a flat map for journaling.
func (s *Signal) Snapshot() map[string]any {
	return map[string]any{
		"kind":          string(s.Kind),
		"symbol":        s.Symbol,
		"price":         s.Price,
		"stop_loss":     s.StopLoss,
		"take_profit_1": s.TakeProfit1,
		"take_profit_2": s.TakeProfit2,
		"confidence":    s.Confidence,
		"reason":        s.Reason,
		"time":          s.Time.UTC().Format(time.RFC3339Nano),
	}
}
