package candle

import (
	"testing"
	"time"
)

func validCandle(ts time.Time) Candle {
	return Candle{
		Timestamp: ts,
		Open:      1.00,
		High:      1.05,
		Low:       0.98,
		Close:     1.02,
		Volume:    1000,
		Symbol:    "NOICEUSDT",
		Source:    "mexc",
	}
}

func TestCandleValidate(t *testing.T) {
	now := time.Now().UTC()

	t.Run("valid candle", func(t *testing.T) {
		c := validCandle(now)
		if err := c.Validate(); err != nil {
			t.Errorf("Unexpected error: %v", err)
		}
	})

	t.Run("zero timestamp", func(t *testing.T) {
		c := validCandle(time.Time{})
		if err := c.Validate(); err == nil {
			t.Error("Expected error for zero timestamp")
		}
	})

	t.Run("non-positive price", func(t *testing.T) {
		c := validCandle(now)
		c.Close = 0
		if err := c.Validate(); err == nil {
			t.Error("Expected error for zero close")
		}
	})

	t.Run("high below low", func(t *testing.T) {
		c := validCandle(now)
		c.High = 0.90
		if err := c.Validate(); err == nil {
			t.Error("Expected error for high < low")
		}
	})

	t.Run("open outside range", func(t *testing.T) {
		c := validCandle(now)
		c.Open = 2.00
		if err := c.Validate(); err == nil {
			t.Error("Expected error for open above high")
		}
	})

	t.Run("negative volume", func(t *testing.T) {
		c := validCandle(now)
		c.Volume = -1
		if err := c.Validate(); err == nil {
			t.Error("Expected error for negative volume")
		}
	})

	t.Run("empty symbol", func(t *testing.T) {
		c := validCandle(now)
		c.Symbol = ""
		if err := c.Validate(); err == nil {
			t.Error("Expected error for empty symbol")
		}
	})
}

func TestTickerValidate(t *testing.T) {
	tick := Ticker{Symbol: "NOICEUSDT", Price: 1.01, Timestamp: time.Now()}
	if err := tick.Validate(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	tick.Price = 0
	if err := tick.Validate(); err == nil {
		t.Error("Expected error for zero price")
	}
}

func TestWindowEviction(t *testing.T) {
	w := NewWindow(3)
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		w.Add(validCandle(base.Add(time.Duration(i) * time.Minute)))
	}

	if w.Len() != 3 {
		t.Fatalf("Expected window length 3, got %d", w.Len())
	}

	snap := w.Snapshot(0)
	if len(snap) != 3 {
		t.Fatalf("Expected 3 candles in snapshot, got %d", len(snap))
	}

	// Oldest evicted first: the window holds minutes 2, 3, 4 in order.
	for i, c := range snap {
		want := base.Add(time.Duration(i+2) * time.Minute)
		if !c.Timestamp.Equal(want) {
			t.Errorf("Candle %d: expected timestamp %v, got %v", i, want, c.Timestamp)
		}
	}
}

func TestWindowSameIntervalRefresh(t *testing.T) {
	w := NewWindow(10)
	ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	first := validCandle(ts)
	if !w.Add(first) {
		t.Error("Expected first candle to advance the window")
	}

	// A redelivered candle for the same interval replaces the entry.
	refresh := validCandle(ts)
	refresh.Close = 1.04
	if w.Add(refresh) {
		t.Error("Expected same-interval refresh not to advance the window")
	}

	if w.Len() != 1 {
		t.Fatalf("Expected window length 1, got %d", w.Len())
	}

	latest, ok := w.Latest()
	if !ok {
		t.Fatal("Expected a latest candle")
	}
	if latest.Close != 1.04 {
		t.Errorf("Expected refreshed close 1.04, got %v", latest.Close)
	}
}

func TestWindowStaleTimestampIgnored(t *testing.T) {
	w := NewWindow(10)
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	w.Add(validCandle(base))
	w.Add(validCandle(base.Add(time.Minute)))

	stale := validCandle(base.Add(-time.Minute))
	if w.Add(stale) {
		t.Error("Expected stale candle not to advance the window")
	}
	if w.Len() != 2 {
		t.Errorf("Expected window length 2, got %d", w.Len())
	}
}

func TestWindowSnapshotCount(t *testing.T) {
	w := NewWindow(5)
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		w.Add(validCandle(base.Add(time.Duration(i) * time.Minute)))
	}

	snap := w.Snapshot(2)
	if len(snap) != 2 {
		t.Fatalf("Expected 2 candles, got %d", len(snap))
	}
	if !snap[1].Timestamp.Equal(base.Add(3 * time.Minute)) {
		t.Errorf("Expected newest candle last, got %v", snap[1].Timestamp)
	}

	// Mutating the snapshot must not touch the window.
	snap[0].Close = 999
	again := w.Snapshot(2)
	if again[0].Close == 999 {
		t.Error("Snapshot must be a copy")
	}
}
