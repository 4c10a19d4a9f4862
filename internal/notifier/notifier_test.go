package notifier

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/noice-trader/internal/engine"
)

func TestTelegramSend(t *testing.T) {
	var chatID, text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		chatID = r.FormValue("chat_id")
		text = r.FormValue("text")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("token", "42")
	n.apiBase = srv.URL

	require.NoError(t, n.Send("hello"))
	assert.Equal(t, "42", chatID)
	assert.Equal(t, "hello", text)
}

func TestTelegramSendReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("token", "42")
	n.apiBase = srv.URL

	err := n.Send("hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram send failed")
}

func TestFormatEvent(t *testing.T) {
	open := engine.TradeEvent{
		Action: engine.ActionOpenPosition,
		Symbol: "BTCUSDT",
		Position: map[string]any{
			"side": "LONG", "quantity": 40.0, "entry_price": 100.0, "stop_loss": 95.0,
		},
	}
	msg := FormatEvent(open)
	assert.Contains(t, msg, "Opened LONG BTCUSDT")

	outage := engine.TradeEvent{
		Action: engine.ActionFeedOutage,
		Symbol: "BTCUSDT",
		Detail: "all feeds down",
	}
	assert.Contains(t, FormatEvent(outage), "all feeds down")

	stop := engine.TradeEvent{
		Action: "stop_loss",
		Symbol: "BTCUSDT",
		Position: map[string]any{
			"realized_pnl": -100.0, "remaining_quantity": 0.0,
		},
	}
	assert.Contains(t, FormatEvent(stop), "stop_loss for BTCUSDT")
}

func TestNoopNeverFails(t *testing.T) {
	var n Notifier = Noop{}
	assert.NoError(t, n.Send("x"))
	assert.NoError(t, n.SendWithRetry("x"))
}
