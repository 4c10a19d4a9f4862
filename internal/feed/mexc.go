package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/amirphl/noice-trader/internal/candle"
)

const mexcWSURL = "wss://wbs.mexc.com/ws"

const (
	mexcKlineChannel  = "spot@public.kline.v3.api"
	mexcTickerChannel = "spot@public.miniTicker.v3.api"
)

// MEXCClient streams klines and mini tickers from the MEXC spot websocket.
type MEXCClient struct {
	connState

	symbol   string
	url      string
	onCandle CandleHandler
	onTicker TickerHandler

	reconnectDelay time.Duration
}

// NewMEXCClient creates a client for one symbol. Handlers may be nil.
func NewMEXCClient(symbol string, onCandle CandleHandler, onTicker TickerHandler) *MEXCClient {
	return &MEXCClient{
		symbol:         strings.ToUpper(symbol),
		url:            mexcWSURL,
		onCandle:       onCandle,
		onTicker:       onTicker,
		reconnectDelay: defaultReconnectDelay,
	}
}

func (c *MEXCClient) Name() string { return "mexc" }

// Connect establishes the stream and blocks until Stop or context
// cancellation, reconnecting with exponential backoff in between. The delay
// resets after any successful reconnect.
func (c *MEXCClient) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !c.bindSession(cancel) {
		return ErrStopped
	}

	delay := c.reconnectDelay
	for {
		if ctx.Err() != nil || c.isStopped() {
			return nil
		}

		established, err := c.connectAndStream(ctx)
		if ctx.Err() != nil || c.isStopped() {
			c.setState(Disconnected, nil)
			return nil
		}
		if established {
			delay = c.reconnectDelay
		}

		c.setState(Reconnecting, err)
		log.Printf("MEXCFeed | Disconnected, retrying in %v: %v", delay, err)
		sleepCtx(ctx, delay)
		delay = nextDelay(delay)
	}
}

// Stop is idempotent; the current and all future connection attempts cease.
func (c *MEXCClient) Stop() {
	c.markStopped()
}

// mexcSubscription is the MEXC subscribe message shape.
type mexcSubscription struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
}

// connectAndStream handles a single connection session. Subscriptions do
// not survive a drop, so they are resent on every session.
func (c *MEXCClient) connectAndStream(ctx context.Context) (bool, error) {
	c.setState(Connecting, nil)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	// Unblock reads promptly when Stop cancels the session.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	sub := mexcSubscription{
		Method: "SUBSCRIPTION",
		Params: []string{
			fmt.Sprintf("%s@%s@Min1", mexcKlineChannel, c.symbol),
			fmt.Sprintf("%s@%s", mexcTickerChannel, c.symbol),
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return false, fmt.Errorf("subscribe failed: %w", err)
	}

	c.setState(Connected, nil)
	log.Printf("MEXCFeed | Connected and subscribed for %s", c.symbol)

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()
	go func() {
		for {
			select {
			case <-pingTicker.C:
				conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		c.handleMessage(message)
	}
}

// mexcMessage is the envelope for public stream payloads.
type mexcMessage struct {
	Channel string          `json:"c"`
	Data    json.RawMessage `json:"d"`
	Time    int64           `json:"t"`
}

// handleMessage normalizes one frame. Malformed payloads are logged and
// skipped, never fatal to the connection.
func (c *MEXCClient) handleMessage(message []byte) {
	var msg mexcMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Printf("MEXCFeed | Skipping malformed frame: %v", err)
		return
	}

	switch {
	case strings.HasPrefix(msg.Channel, mexcKlineChannel):
		cdl, err := c.parseKline(msg.Data)
		if err != nil {
			log.Printf("MEXCFeed | Skipping malformed kline: %v", err)
			return
		}
		if c.onCandle != nil {
			c.onCandle(cdl)
		}
	case strings.HasPrefix(msg.Channel, mexcTickerChannel):
		tick, err := c.parseTicker(msg.Data)
		if err != nil {
			log.Printf("MEXCFeed | Skipping malformed ticker: %v", err)
			return
		}
		if c.onTicker != nil {
			c.onTicker(tick)
		}
	}
}

// mexcKlineData is the kline payload: d.k carries the interval values.
type mexcKlineData struct {
	Kline struct {
		Start  int64       `json:"t"`
		Open   json.Number `json:"o"`
		High   json.Number `json:"h"`
		Low    json.Number `json:"l"`
		Close  json.Number `json:"c"`
		Volume json.Number `json:"v"`
	} `json:"k"`
}

func (c *MEXCClient) parseKline(data json.RawMessage) (candle.Candle, error) {
	var payload mexcKlineData
	if err := json.Unmarshal(data, &payload); err != nil {
		return candle.Candle{}, err
	}
	k := payload.Kline

	open, err1 := k.Open.Float64()
	high, err2 := k.High.Float64()
	low, err3 := k.Low.Float64()
	closePrice, err4 := k.Close.Float64()
	volume, err5 := k.Volume.Float64()
	for _, err := range []error{err1, err2, err3, err4, err5} {
		if err != nil {
			return candle.Candle{}, fmt.Errorf("invalid kline number: %w", err)
		}
	}

	cdl := candle.Candle{
		Timestamp: time.UnixMilli(k.Start).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		Symbol:    c.symbol,
		Source:    c.Name(),
	}
	if err := cdl.Validate(); err != nil {
		return candle.Candle{}, err
	}
	return cdl, nil
}

// mexcTickerData is the miniTicker payload.
type mexcTickerData struct {
	Close     json.Number `json:"c"`
	Bid       json.Number `json:"b"`
	Ask       json.Number `json:"a"`
	Volume    json.Number `json:"v"`
	ChangePct json.Number `json:"P"`
}

func (c *MEXCClient) parseTicker(data json.RawMessage) (candle.Ticker, error) {
	var payload mexcTickerData
	if err := json.Unmarshal(data, &payload); err != nil {
		return candle.Ticker{}, err
	}

	price, err := payload.Close.Float64()
	if err != nil {
		return candle.Ticker{}, fmt.Errorf("invalid ticker price: %w", err)
	}

	tick := candle.Ticker{
		Symbol:    c.symbol,
		Price:     price,
		Bid:       numberOrZero(payload.Bid),
		Ask:       numberOrZero(payload.Ask),
		Volume24h: numberOrZero(payload.Volume),
		Change24h: numberOrZero(payload.ChangePct),
		Timestamp: time.Now().UTC(),
	}
	if err := tick.Validate(); err != nil {
		return candle.Ticker{}, err
	}
	return tick, nil
}

// numberOrZero tolerates absent or malformed optional fields.
func numberOrZero(n json.Number) float64 {
	if n == "" {
		return 0
	}
	v, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return 0
	}
	return v
}
