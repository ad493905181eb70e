// Package panel is the local control surface of the audio client: a page with
// start and stop controls, JSON endpoints behind them and a websocket feed of
// state changes.
package panel

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/enesunal-m/realtimechat"
	"github.com/enesunal-m/realtimechat/webrtc"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

//go:embed index.html
var indexHTML []byte

// writeTimeout bounds one websocket frame write.
const writeTimeout = 5 * time.Second

// Chat is the part of *webrtc.Controller the panel drives.
type Chat interface {
	Start(ctx context.Context) error
	Stop() error
	State() webrtc.StateChange
	Subscribe() (<-chan webrtc.StateChange, func())
}

// Server serves the panel routes.
type Server struct {
	chat Chat
	log  *realtimechat.Logger
}

// New returns a panel server for chat.
func New(chat Chat, l *realtimechat.Logger) *Server {
	return &Server{chat: chat, log: l}
}

// Routes returns the panel router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Route("/api/chat", func(api chi.Router) {
		api.Post("/start", s.handleStart)
		api.Post("/stop", s.handleStop)
		api.Get("/state", s.handleState)
		api.Get("/events", s.handleEvents)
	})
	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	// The session outlives the request; only Stop ends it.
	err := s.chat.Start(context.WithoutCancel(r.Context()))
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, s.chat.State())
	case errors.Is(err, realtimechat.ErrSessionActive), errors.Is(err, realtimechat.ErrSessionStopped):
		respondError(w, http.StatusConflict, err.Error())
	default:
		s.log.Warn("panel_start_failed", map[string]any{"error": err})
		respondError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	if err := s.chat.Stop(); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.chat.State())
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.chat.State())
}

// handleEvents streams state changes, starting with the current state.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("panel_ws_accept_failed", map[string]any{"error": err})
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	updates, unsubscribe := s.chat.Subscribe()
	defer unsubscribe()

	// The feed is one-way; CloseRead watches for the client going away.
	ctx := conn.CloseRead(r.Context())

	if err := write(ctx, conn, s.chat.State()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-updates:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "controller closed")
				return
			}
			if err := write(ctx, conn, change); err != nil {
				s.log.Debug("panel_ws_write_failed", map[string]any{"error": err})
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
