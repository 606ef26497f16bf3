package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"trading-systemv1/internal/bybit"
	"trading-systemv1/internal/state"
)

const (
	cleanCloseBackoff = 1 * time.Second
	errorBackoff      = 2 * time.Second
	pingInterval      = 20 * time.Second
	pingTimeout       = 10 * time.Second
	maxFrameBytes     = 2 << 20 // 2 MiB
)

// workerState names the per-connection state machine from spec.md §4.3.
// It exists only for readability; it is never logged, and transitions are
// implicit in the control flow below.
type workerState string

const (
	stateConnecting  workerState = "connecting"
	stateSubscribing workerState = "subscribing"
	stateRunning     workerState = "running"
)

// Worker owns one upstream websocket connection and a disjoint bucket of
// topic subscriptions. It reconnects forever until ctx is cancelled.
type Worker struct {
	id     int
	url    string
	topics []string
	store  *state.Store
	log    *slog.Logger

	// OnReconnect, OnDroppedFrame, OnTicker and OnKline are optional
	// metrics hooks.
	OnReconnect    func()
	OnDroppedFrame func()
	OnTicker       func()
	OnKline        func()
}

func NewWorker(id int, url string, topics []string, store *state.Store, log *slog.Logger) *Worker {
	return &Worker{id: id, url: url, topics: topics, store: store, log: log}
}

// Run blocks until ctx is cancelled, maintaining the connection and
// reconnecting on every close or error.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		clean, err := w.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			w.log.Warn("ingest worker: connection lost", slog.Int("worker", w.id), slog.Any("err", err))
		}
		if w.OnReconnect != nil {
			w.OnReconnect()
		}
		backoff := errorBackoff
		if clean {
			backoff = cleanCloseBackoff
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
	}
}

// runOnce performs one Connecting→Subscribing→Running lifecycle. Returns
// whether the connection ended via a clean close (vs. a transport error).
func (w *Worker) runOnce(ctx context.Context) (clean bool, err error) {
	st := stateConnecting
	_ = st // documents the transition below

	conn, _, dialErr := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if dialErr != nil {
		return false, dialErr
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)

	st = stateSubscribing
	frame := bybit.NewSubscribeFrame(w.topics)
	if err := conn.WriteJSON(frame); err != nil {
		return false, err
	}

	stopPing := make(chan struct{})
	defer close(stopPing)
	go w.pingLoop(conn, stopPing)

	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	first := true
	for {
		_, msg, readErr := conn.ReadMessage()
		if readErr != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return isCleanClose(readErr), readErr
		}
		if first {
			st = stateRunning
			first = false
		}
		w.dispatch(msg)
	}
}

func (w *Worker) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(pingTimeout))
			if err := conn.WriteJSON(map[string]string{"op": "ping"}); err != nil {
				return
			}
		}
	}
}

// dispatch parses one inbound frame and applies it to the store. Parse
// failures and unknown topics are dropped silently — they reflect upstream
// garbage, not a protocol break.
func (w *Worker) dispatch(msg []byte) {
	update, ok := bybit.ParseFrame(msg)
	if !ok {
		if w.OnDroppedFrame != nil {
			w.OnDroppedFrame()
		}
		return
	}
	switch {
	case update.HasTicker:
		price := update.LastPrice
		w.store.ApplyTicker(update.Symbol, &price, 0)
		if w.OnTicker != nil {
			w.OnTicker()
		}
	case update.HasKline:
		w.store.ApplyKline(update.Symbol, update.Timeframe, update.Candle, update.Confirmed)
		if w.OnKline != nil {
			w.OnKline()
		}
	}
}

func isCleanClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
