package broadcast

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"trading-systemv1/internal/gateway"
	"trading-systemv1/internal/model"
	"trading-systemv1/internal/state"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dialClient(t *testing.T, hub *gateway.Hub) (*websocket.Conn, func()) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Accept(conn, nil)
		select {}
	}))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, srv.Close
}

// Scenario 4: debounce coalescing. 100 dirty signals within the window
// produce at most one broadcast, carrying the latest state.
func TestBroadcaster_DebounceCoalescing(t *testing.T) {
	st := state.New()
	st.AddEntry("X", "X", "USDT")
	sig := NewSignal()
	st.SetDirtyMarker(sig)
	hub := gateway.NewHub()

	conn, closeSrv := dialClient(t, hub)
	defer closeSrv()
	defer conn.Close()

	b := New(sig, st, hub, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	for i := 0; i < 100; i++ {
		p := float64(i)
		st.ApplyTicker("X", &p, 0)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(msg, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snap.Entries[0].LastPrice == nil || *snap.Entries[0].LastPrice != 99 {
		t.Fatalf("expected last applied price 99, got %v", snap.Entries[0].LastPrice)
	}

	// Assert no second broadcast follows within another debounce window —
	// the 100 updates should have coalesced into exactly one.
	conn.SetReadDeadline(time.Now().Add(DefaultDebounceWindow * 2))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected no second broadcast within 2x debounce window")
	}
}

func TestBroadcaster_FansOutToAllClients(t *testing.T) {
	st := state.New()
	st.AddEntry("X", "X", "USDT")
	sig := NewSignal()
	st.SetDirtyMarker(sig)
	hub := gateway.NewHub()

	conn1, close1 := dialClient(t, hub)
	defer close1()
	defer conn1.Close()
	conn2, close2 := dialClient(t, hub)
	defer close2()
	defer conn2.Close()

	b := New(sig, st, hub, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	price := 1.0
	st.ApplyTicker("X", &price, 0)

	for _, c := range []*websocket.Conn{conn1, conn2} {
		c.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, _, err := c.ReadMessage(); err != nil {
			t.Fatalf("ReadMessage: %v", err)
		}
	}
}
