package transport

import (
	"context"
	"encoding/json"
	"log"
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	server "gamesession/server"
	"gamesession/server/internal/telemetry"
)

// clientMessage is the inbound envelope for every client-submitted request,
// mirroring the teacher's ws.clientMessage discriminated-union shape: a
// type tag plus a raw payload decoded per type.
type clientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// errorMessage is the outbound envelope for a request-plane failure
// (spec.md §7): Engine operations return *server.RequestError, which this
// handler reflects back to the originating connection rather than closing
// it, matching the teacher's reject-and-continue pattern in handler.go.
type errorMessage struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// PlayerDirectory is the subset of collaborators.Directory the handler
// needs to register/unregister a connecting player, kept narrow so the
// handler does not depend on the collaborators package directly.
type PlayerDirectory interface {
	Register(player *server.Player)
	Unregister(id int32)
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	Logger *log.Logger
}

// Handler upgrades incoming HTTP requests to websocket connections and
// dispatches each client message to the corresponding Engine operation.
// Grounded on the teacher's internal/net/ws.Handler: one upgrader, one
// per-connection read loop, best-effort disconnect-and-cleanup on any
// read/write error.
type Handler struct {
	engine    *server.Engine
	conns     *connections
	directory PlayerDirectory
	logger    *log.Logger
	upgrader  websocket.Upgrader
}

// NewHandler constructs a Handler. conns must be the same registry backing
// the Channel passed to the Engine as its ClientChannel, so pushes and
// client-initiated messages share one connection table.
func NewHandler(engine *server.Engine, conns *connections, directory PlayerDirectory, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		engine:    engine,
		conns:     conns,
		directory: directory,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *nethttp.Request) bool { return true },
		},
	}
}

func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	idParam := r.URL.Query().Get("id")
	login := r.URL.Query().Get("login")
	if idParam == "" || login == "" {
		nethttp.Error(w, "missing id or login", nethttp.StatusBadRequest)
		return
	}
	playerID, err := parsePlayerID(idParam)
	if err != nil {
		nethttp.Error(w, "invalid id", nethttp.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for %d: %v", playerID, err)
		return
	}

	player := h.engine.EnsurePlayer(playerID, login)
	h.conns.add(playerID, ws)
	if h.directory != nil {
		h.directory.Register(player)
	}

	h.loop(ws, player)

	h.conns.remove(playerID)
	if h.directory != nil {
		h.directory.Unregister(playerID)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.engine.RemovePlayer(ctx, player); err != nil {
		h.logger.Printf("remove player %d on disconnect: %v", playerID, err)
	}
}

func (h *Handler) loop(ws *websocket.Conn, player *server.Player) {
	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.logger.Printf("discarding malformed message from %d: %v", player.ID, err)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		ctx = telemetry.WithTraceID(ctx, uuid.NewString())
		err = h.dispatch(ctx, player, msg)
		cancel()
		if err == nil {
			continue
		}
		if reqErr, ok := err.(*server.RequestError); ok {
			h.reply(player.ID, reqErr)
			continue
		}
		h.logger.Printf("dispatch %s for %d: %v", msg.Type, player.ID, err)
	}
}

func (h *Handler) reply(playerID int32, reqErr *server.RequestError) {
	_ = h.conns.send(playerID, errorMessage{Type: "error", Code: string(reqErr.Code), Error: reqErr.Error()})
}

func parsePlayerID(s string) (int32, error) {
	id, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(id), nil
}
