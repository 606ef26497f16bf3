package ingest

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"trading-systemv1/internal/model"
	"trading-systemv1/internal/state"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestWorker_DispatchesDataFrame spins up a tiny echo-style WS server that
// sends one kline frame after receiving the subscribe frame, and asserts
// the worker applies it to the store.
func TestWorker_DispatchesDataFrame(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Wait for the subscribe frame, then push one kline update.
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		kline := `{"topic":"kline.1.BTCUSDT","data":[{"start":1,"open":"100","high":"110","low":"95","close":"108","volume":"1","turnover":"1","confirm":true}]}`
		conn.WriteMessage(websocket.TextMessage, []byte(kline))

		// Keep the connection open until the client disconnects.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	st := state.New()
	st.AddEntry("BTCUSDT", "BTC", "USDT")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	w := NewWorker(0, wsURL, []string{"kline.1.BTCUSDT"}, st, discardLogger())

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(1500 * time.Millisecond)
	for time.Now().Before(deadline) {
		snap := st.BuildSnapshot()
		m := snap.Entries[0].Metrics[model.M1]
		if m.ChangePercent != nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	<-done

	snap := st.BuildSnapshot()
	m := snap.Entries[0].Metrics[model.M1]
	if m.ChangePercent == nil {
		t.Fatalf("expected kline frame to be applied to the store")
	}
	if *m.ChangePercent != 8.0 {
		t.Fatalf("changePercent: got %v, want 8.0", *m.ChangePercent)
	}
}
