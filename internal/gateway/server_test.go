package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"trading-systemv1/internal/model"
	"trading-systemv1/internal/state"
)

func TestHandler_SendsCurrentSnapshotOnUpgrade(t *testing.T) {
	st := state.New()
	st.AddEntry("BTCUSDT", "BTC", "USDT")
	price := 100.0
	st.ApplyTicker("BTCUSDT", &price, 0)

	hub := NewHub()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(hub, st, log)

	srv := httptest.NewServer(h)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(msg, &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(snap.Entries) != 1 || snap.Entries[0].LastPrice == nil || *snap.Entries[0].LastPrice != 100 {
		t.Fatalf("expected the current snapshot with seeded price, got %+v", snap.Entries)
	}
	if hub.Count() != 1 {
		t.Fatalf("expected client registered in hub, got count=%d", hub.Count())
	}
}
