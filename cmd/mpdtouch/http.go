package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nikoskalogridis/mpdtouch/internal/nav"
	"github.com/nikoskalogridis/mpdtouch/internal/remote"
)

// ============================================================================
// HTTP server
// ============================================================================
// Serves the status websocket and a small control surface:
//   POST /control/swipe?direction=up|down|left|right
//   POST /control/command?name=<remote command>
// ============================================================================

const shutdownTimeout = 3 * time.Second

type controlResponse struct {
	Status string `json:"status"`          // "ok" or "error"
	Error  string `json:"error,omitempty"` // set when status == "error"
}

func writeControlResponse(w http.ResponseWriter, code int, err error) {
	resp := controlResponse{Status: "ok"}
	if err != nil {
		resp = controlResponse{Status: "error", Error: err.Error()}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// registerControlHandlers wires gestures and remote commands into the
// frontend's input channels. Both are non-blocking; a full queue is a 503.
func registerControlHandlers(mux *http.ServeMux, fe *frontend, navs chan<- nav.Event, logger *slog.Logger) {
	mux.HandleFunc("POST /control/swipe", func(w http.ResponseWriter, r *http.Request) {
		d, err := parseSwipe(r.URL.Query().Get("direction"))
		if err != nil {
			writeControlResponse(w, http.StatusBadRequest, err)
			return
		}
		if !fe.Swipe(d) {
			writeControlResponse(w, http.StatusServiceUnavailable, errors.New("input queue full"))
			return
		}
		logger.Debug("http swipe", "direction", d.String(), "remote_addr", r.RemoteAddr)
		writeControlResponse(w, http.StatusOK, nil)
	})

	mux.HandleFunc("POST /control/command", func(w http.ResponseWriter, r *http.Request) {
		b, err := remote.ParseCommand(r.URL.Query().Get("name"))
		if err != nil {
			writeControlResponse(w, http.StatusBadRequest, err)
			return
		}
		ev, _ := remote.Decode(b)
		select {
		case navs <- ev:
		default:
			writeControlResponse(w, http.StatusServiceUnavailable, errors.New("input queue full"))
			return
		}
		logger.Debug("http command", "event", ev.String(), "remote_addr", r.RemoteAddr)
		writeControlResponse(w, http.StatusOK, nil)
	})
}

// serveHTTP serves handler on ln and shuts it down gracefully when ctx is
// canceled.
func serveHTTP(ctx context.Context, ln net.Listener, handler http.Handler, logger *slog.Logger) error {
	logger.Info("http server listening", "addr", ln.Addr().String())

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		// Serve returns http.ErrServerClosed on Shutdown.
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		<-errCh
		logger.Info("http server stopped")
		return nil

	case err := <-errCh:
		return err
	}
}
