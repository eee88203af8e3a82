package statews

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nikoskalogridis/mpdtouch/internal/mpdcontrol"
)

// snapshotTimeout bounds the initial snapshot round trip when the request
// carries no deadline of its own.
const snapshotTimeout = time.Second

// SnapshotSource provides the initial state for new connections.
// *mpdcontrol.Coordinator satisfies it.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (mpdcontrol.Snapshot, error)
}

type Server struct {
	logger *slog.Logger
	hub    *Hub
	source SnapshotSource
}

type ServerConfig struct {
	Hub HubConfig
}

// NewServer constructs the server and its hub. Register it on a mux and
// start Hub().Run(ctx) and RunBroadcaster.
func NewServer(logger *slog.Logger, source SnapshotSource, cfg ServerConfig) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger: logger,
		hub:    NewHub(logger, cfg.Hub),
		source: source,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Register installs the websocket handler on mux at path.
func (s *Server) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleStateWS)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStateWS upgrades the connection, queues state_init and only then
// registers the client, so the snapshot is always its first message.
func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)
	if initMsg, ok := s.stateInit(r.Context(), client); ok {
		// The send queue is empty, so this cannot fail on a fresh client.
		client.enqueue(initMsg)
	}

	s.hub.register <- client

	// The pumps outlive the handler: net/http cancels r.Context() as soon as
	// we return, which would tear the connection down.
	go client.writePump(context.Background())
	go client.readPump()
}

// stateInit builds the state_init frame. A failed snapshot is logged and the
// client is served broadcasts only.
func (s *Server) stateInit(ctx context.Context, client *Client) ([]byte, bool) {
	if s.source == nil {
		return nil, false
	}

	if _, has := ctx.Deadline(); !has {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, snapshotTimeout)
		defer cancel()
	}

	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "client_id", client.id, "error", err)
		}
		return nil, false
	}

	initMsg, err := marshalEvent(Event{Type: TypeStateInit, Data: snap})
	if err != nil {
		s.logger.Warn("ws state_init marshal failed", "error", err)
		return nil, false
	}
	return initMsg, true
}
