package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/amirphl/noice-trader/internal/candle"
)

const binanceWSBase = "wss://stream.binance.com:9443/ws"

// BinanceClient streams klines and 24hr tickers from the Binance spot
// combined websocket. It serves as the backup feed.
type BinanceClient struct {
	connState

	symbol   string
	url      string
	onCandle CandleHandler
	onTicker TickerHandler

	reconnectDelay time.Duration
}

// NewBinanceClient creates a client for one symbol. Handlers may be nil.
func NewBinanceClient(symbol string, onCandle CandleHandler, onTicker TickerHandler) *BinanceClient {
	symbol = strings.ToUpper(symbol)
	lower := strings.ToLower(symbol)
	return &BinanceClient{
		symbol:         symbol,
		url:            fmt.Sprintf("%s/%s@kline_1m/%s@ticker", binanceWSBase, lower, lower),
		onCandle:       onCandle,
		onTicker:       onTicker,
		reconnectDelay: defaultReconnectDelay,
	}
}

func (c *BinanceClient) Name() string { return "binance" }

// Connect blocks until Stop or context cancellation, reconnecting with
// exponential backoff in between.
func (c *BinanceClient) Connect(ctx context.Context) error {
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
		log.Printf("BinanceFeed | Disconnected, retrying in %v: %v", delay, err)
		sleepCtx(ctx, delay)
		delay = nextDelay(delay)
	}
}

// Stop is idempotent.
func (c *BinanceClient) Stop() {
	c.markStopped()
}

// connectAndStream runs a single session. Streams are selected by URL, so
// no subscribe message is needed.
func (c *BinanceClient) connectAndStream(ctx context.Context) (bool, error) {
	c.setState(Connecting, nil)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	c.setState(Connected, nil)
	log.Printf("BinanceFeed | Connected for %s", c.symbol)

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		c.handleMessage(message)
	}
}

// binanceEvent is the common envelope; e selects the payload shape.
type binanceEvent struct {
	Event string `json:"e"`
}

type binanceKlineEvent struct {
	Kline struct {
		Start  int64  `json:"t"`
		Open   string `json:"o"`
		High   string `json:"h"`
		Low    string `json:"l"`
		Close  string `json:"c"`
		Volume string `json:"v"`
	} `json:"k"`
}

type binanceTickerEvent struct {
	Close     string `json:"c"`
	Bid       string `json:"b"`
	Ask       string `json:"a"`
	Volume    string `json:"v"`
	ChangePct string `json:"P"`
}

func (c *BinanceClient) handleMessage(message []byte) {
	var env binanceEvent
	if err := json.Unmarshal(message, &env); err != nil {
		log.Printf("BinanceFeed | Skipping malformed frame: %v", err)
		return
	}

	switch env.Event {
	case "kline":
		cdl, err := c.parseKline(message)
		if err != nil {
			log.Printf("BinanceFeed | Skipping malformed kline: %v", err)
			return
		}
		if c.onCandle != nil {
			c.onCandle(cdl)
		}
	case "24hrTicker":
		tick, err := c.parseTicker(message)
		if err != nil {
			log.Printf("BinanceFeed | Skipping malformed ticker: %v", err)
			return
		}
		if c.onTicker != nil {
			c.onTicker(tick)
		}
	}
}

func (c *BinanceClient) parseKline(message []byte) (candle.Candle, error) {
	var ev binanceKlineEvent
	if err := json.Unmarshal(message, &ev); err != nil {
		return candle.Candle{}, err
	}
	k := ev.Kline

	open, err1 := parsePrice(k.Open)
	high, err2 := parsePrice(k.High)
	low, err3 := parsePrice(k.Low)
	closePrice, err4 := parsePrice(k.Close)
	volume, err5 := parsePrice(k.Volume)
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

func (c *BinanceClient) parseTicker(message []byte) (candle.Ticker, error) {
	var ev binanceTickerEvent
	if err := json.Unmarshal(message, &ev); err != nil {
		return candle.Ticker{}, err
	}

	price, err := parsePrice(ev.Close)
	if err != nil {
		return candle.Ticker{}, fmt.Errorf("invalid ticker price: %w", err)
	}

	tick := candle.Ticker{
		Symbol:    c.symbol,
		Price:     price,
		Bid:       priceOrZero(ev.Bid),
		Ask:       priceOrZero(ev.Ask),
		Volume24h: priceOrZero(ev.Volume),
		Change24h: priceOrZero(ev.ChangePct),
		Timestamp: time.Now().UTC(),
	}
	if err := tick.Validate(); err != nil {
		return candle.Ticker{}, err
	}
	return tick, nil
}

func parsePrice(s string) (float64, error) {
	return json.Number(s).Float64()
}

func priceOrZero(s string) float64 {
	return numberOrZero(json.Number(s))
}
