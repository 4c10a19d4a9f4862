package feed

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/amirphl/noice-trader/internal/candle"
)

// defaultWindowSize is the rolling candle history kept by the handler.
const defaultWindowSize = 500

// Handler owns the primary and backup feed clients for one symbol. Primary
// data updates the rolling candle window and is fanned out to consumers;
// backup data is only counted, as a liveness signal for failover decisions.
//
// All consumer callbacks run on the primary client's read goroutine, so
// downstream state touched only from callbacks needs no locking.
type Handler struct {
	symbol string
	window *candle.Window

	primary Client
	backup  Client

	mu              sync.RWMutex
	nextConsumerID  int
	candleConsumers map[int]CandleHandler
	tickerConsumers map[int]TickerHandler

	latestTicker    *candle.Ticker
	primaryCandles  int64
	backupCandles   int64
	droppedStale    int64
	lastPrimarySeen time.Time
	lastBackupSeen  time.Time
}

// NewHandler wires a MEXC primary and a Binance backup for the symbol.
func NewHandler(symbol string, windowSize int) *Handler {
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}
	h := &Handler{
		symbol:          symbol,
		window:          candle.NewWindow(windowSize),
		candleConsumers: make(map[int]CandleHandler),
		tickerConsumers: make(map[int]TickerHandler),
	}
	h.primary = NewMEXCClient(symbol, h.onPrimaryCandle, h.onPrimaryTicker)
	h.backup = NewBinanceClient(symbol, h.onBackupCandle, nil)
	return h
}

// NewHandlerWithClients is used by tests to inject fake clients. The
// handlers the clients call must be the returned Handler's onPrimary* and
// onBackup* methods; build is a factory receiving them.
func NewHandlerWithClients(symbol string, windowSize int, build func(h *Handler) (primary, backup Client)) *Handler {
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}
	h := &Handler{
		symbol:          symbol,
		window:          candle.NewWindow(windowSize),
		candleConsumers: make(map[int]CandleHandler),
		tickerConsumers: make(map[int]TickerHandler),
	}
	h.primary, h.backup = build(h)
	return h
}

// Start runs both clients and blocks until both return. Each client
// reconnects internally, so Start only returns after Stop or context
// cancellation.
func (h *Handler) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := h.primary.Connect(ctx); err != nil {
			log.Printf("FeedHandler | Primary feed exited: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if h.backup == nil {
			return
		}
		if err := h.backup.Connect(ctx); err != nil {
			log.Printf("FeedHandler | Backup feed exited: %v", err)
		}
	}()

	wg.Wait()
	return nil
}

// Stop stops both clients. Idempotent.
func (h *Handler) Stop() {
	h.primary.Stop()
	if h.backup != nil {
		h.backup.Stop()
	}
}

// RegisterCandleConsumer adds a consumer and returns a handle for removal.
func (h *Handler) RegisterCandleConsumer(fn CandleHandler) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextConsumerID++
	h.candleConsumers[h.nextConsumerID] = fn
	return h.nextConsumerID
}

// RegisterTickerConsumer adds a ticker consumer and returns a handle.
func (h *Handler) RegisterTickerConsumer(fn TickerHandler) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextConsumerID++
	h.tickerConsumers[h.nextConsumerID] = fn
	return h.nextConsumerID
}

// RemoveConsumer deletes the consumer with the given handle, if present.
func (h *Handler) RemoveConsumer(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.candleConsumers, id)
	delete(h.tickerConsumers, id)
}

// onPrimaryCandle applies a primary candle to the window and fans it out.
// Stale candles (older than the newest in the window) are dropped, which
// also deduplicates replays after a reconnect.
func (h *Handler) onPrimaryCandle(c candle.Candle) {
	accepted := h.window.Add(c)

	h.mu.Lock()
	h.primaryCandles++
	h.lastPrimarySeen = time.Now()
	if !accepted {
		if latest, ok := h.window.Latest(); ok && c.Timestamp.Before(latest.Timestamp) {
			h.droppedStale++
			h.mu.Unlock()
			return
		}
	}
	consumers := make([]CandleHandler, 0, len(h.candleConsumers))
	for _, fn := range h.candleConsumers {
		consumers = append(consumers, fn)
	}
	h.mu.Unlock()

	for _, fn := range consumers {
		h.dispatchCandle(fn, c)
	}
}

// onPrimaryTicker records the latest ticker and fans it out.
func (h *Handler) onPrimaryTicker(t candle.Ticker) {
	h.mu.Lock()
	tick := t
	h.latestTicker = &tick
	h.lastPrimarySeen = time.Now()
	consumers := make([]TickerHandler, 0, len(h.tickerConsumers))
	for _, fn := range h.tickerConsumers {
		consumers = append(consumers, fn)
	}
	h.mu.Unlock()

	for _, fn := range consumers {
		h.dispatchTicker(fn, t)
	}
}

// onBackupCandle only counts backup traffic. The backup feed proves the
// market is alive when the primary is down; its candles are not trusted
// for strategy state because the two books differ.
func (h *Handler) onBackupCandle(c candle.Candle) {
	h.mu.Lock()
	h.backupCandles++
	h.lastBackupSeen = time.Now()
	h.mu.Unlock()
}

// dispatchCandle isolates consumer panics so one failing consumer cannot
// take down the feed or starve its siblings.
func (h *Handler) dispatchCandle(fn CandleHandler, c candle.Candle) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("FeedHandler | Candle consumer panicked: %v", r)
		}
	}()
	fn(c)
}

func (h *Handler) dispatchTicker(fn TickerHandler, t candle.Ticker) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("FeedHandler | Ticker consumer panicked: %v", r)
		}
	}()
	fn(t)
}

// Symbol returns the traded symbol.
func (h *Handler) Symbol() string { return h.symbol }

// Candles returns a copy of the most recent count candles, oldest first.
func (h *Handler) Candles(count int) []candle.Candle {
	return h.window.Snapshot(count)
}

// LatestTicker returns the most recent primary ticker, if any.
func (h *Handler) LatestTicker() (candle.Ticker, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latestTicker == nil {
		return candle.Ticker{}, false
	}
	return *h.latestTicker, true
}

// Health reports an error when the primary feed is down and the backup
// shows no signs of life either, meaning we are blind to the market.
func (h *Handler) Health() error {
	if h.primary.IsConnected() {
		return nil
	}
	if h.backup != nil && h.backup.IsConnected() {
		return fmt.Errorf("primary feed %s down, running on backup %s", h.primary.Name(), h.backup.Name())
	}
	return fmt.Errorf("all feeds down: primary %v", h.primary.Health())
}

// Status returns a snapshot of feed counters and connection states.
func (h *Handler) Status() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	status := map[string]any{
		"symbol":          h.symbol,
		"window_len":      h.window.Len(),
		"primary":         h.primary.Name(),
		"primary_up":      h.primary.IsConnected(),
		"primary_candles": h.primaryCandles,
		"dropped_stale":   h.droppedStale,
	}
	if h.backup != nil {
		status["backup"] = h.backup.Name()
		status["backup_up"] = h.backup.IsConnected()
		status["backup_candles"] = h.backupCandles
	}
	if !h.lastPrimarySeen.IsZero() {
		status["last_primary_seen"] = h.lastPrimarySeen.UTC().Format(time.RFC3339)
	}
	return status
}
