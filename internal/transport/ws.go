// Package transport implements the websocket front door onto
// internal/dispatcher: it upgrades an HTTP request to a persistent
// bidirectional connection, authenticates it (Authorization: Bearer for
// participants, X-API-KEY for monitor sessions), and pumps frames between
// the socket and a dispatcher.Conn.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/classroomlive/classroomd/internal/authclient"
	"github.com/classroomlive/classroomd/internal/dispatcher"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the HTTP server exposing the /ws event-stream endpoint plus
// liveness and metrics probes. Start blocks until ctx cancellation, then
// drains gracefully.
type Server struct {
	http       *http.Server
	dispatcher *dispatcher.Dispatcher
	verifier   *authclient.Verifier
	monitorKey string
	log        *slog.Logger
}

// NewServer builds a Server listening on addr.
func NewServer(addr string, d *dispatcher.Dispatcher, verifier *authclient.Verifier, monitorKey string, log *slog.Logger) *Server {
	s := &Server{dispatcher: d, verifier: verifier, monitorKey: monitorKey, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", d.Env.Metrics.Handler())
	r.Get("/ws", s.handleWS)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  0, // long-lived connections
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// authenticate verifies a bearer token against the upstream token
// service; an X-API-KEY matching MONITOR_KEY grants an admin/monitor
// session with no participant identity and skips token verification
// entirely.
func (s *Server) authenticate(r *http.Request) (authclient.Principal, bool, error) {
	if key := r.Header.Get("X-API-KEY"); key != "" {
		if s.monitorKey == "" || key != s.monitorKey {
			return authclient.Principal{}, false, authclient.ErrAuthFailed
		}
		return authclient.Principal{}, true, nil
	}

	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
		return authclient.Principal{}, false, authclient.ErrAuthFailed
	}
	token := auth[len(prefix):]

	principal, err := s.verifier.Verify(r.Context(), token)
	if err != nil {
		return authclient.Principal{}, false, err
	}
	return *principal, false, nil
}

// handleWS authenticates, then pumps inbound frames to conn.HandleFrame
// and outbound frames from conn.Outbound to the socket until either side
// closes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	principal, isAdmin, err := s.authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	conn := s.dispatcher.Connect(principal, isAdmin)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	defer conn.Disconnect(context.Background())

	ws.SetReadLimit(8 << 20)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go s.readPump(ctx, cancel, ws, conn)
	s.writePump(ctx, ws, conn)
}

// readPump is the single goroutine reading the socket: per-session
// inbound frames must be processed in arrival order, so HandleFrame is
// called synchronously here rather than fanned out.
func (s *Server) readPump(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, conn *dispatcher.Conn) {
	defer cancel()
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		conn.HandleFrame(ctx, raw)
	}
}

func (s *Server) writePump(ctx context.Context, ws *websocket.Conn, conn *dispatcher.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-conn.Outbound:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := ws.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("transport: listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
