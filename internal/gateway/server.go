package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"trading-systemv1/internal/state"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades every incoming request to a websocket connection and
// registers it with Hub, sending the store's current snapshot immediately.
// There is no subscription handshake: the upgrade itself is the only
// protocol step.
type Handler struct {
	hub   *Hub
	store *state.Store
	log   *slog.Logger
}

func NewHandler(hub *Hub, store *state.Store, log *slog.Logger) *Handler {
	return &Handler{hub: hub, store: store, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("gateway: upgrade failed", slog.Any("err", err))
		return
	}

	h.store.RecomputeOverview()
	snap := h.store.BuildSnapshot()
	payload, err := json.Marshal(snap)
	if err != nil {
		h.log.Error("gateway: marshal initial snapshot failed", slog.Any("err", err))
		conn.Close()
		return
	}

	h.hub.Accept(conn, payload)
}
