package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebServer serves the WebSocket transport and a small JSON API next to
// the telnet listeners.
type WebServer struct {
	app       *App
	cfg       Config
	auth      *AuthService
	metrics   *Metrics
	limiter   *ipLimiter
	upgrader  websocket.Upgrader
	handler   http.Handler
	startTime time.Time
}

// WSMessage is the JSON frame format. Clients send
// {"type":"command","command":"..."}; replies are {"type":"text","text":"..."}.
type WSMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Command string `json:"command,omitempty"`
}

// NewWebServer builds the routes. metrics may be nil to leave /metrics out.
func NewWebServer(app *App, auth *AuthService, metrics *Metrics, cfg Config) *WebServer {
	ws := &WebServer{
		app:       app,
		cfg:       cfg,
		auth:      auth,
		metrics:   metrics,
		limiter:   newIPLimiter(max(cfg.APIRate, 1)),
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(cfg.CORSOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, o := range cfg.CORSOrigins {
					if strings.EqualFold(o, origin) {
						return true
					}
				}
				return false
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /chat", ws.handleWebSocket)
	mux.HandleFunc("GET /ws", ws.handleWebSocket)
	mux.Handle("POST /api/v1/auth/login", rateLimitMiddleware(ws.limiter, http.HandlerFunc(ws.handleAuthLogin)))
	mux.Handle("POST /api/v1/auth/refresh", rateLimitMiddleware(ws.limiter, http.HandlerFunc(ws.handleAuthRefresh)))
	mux.Handle("GET /api/v1/who", authMiddleware(auth, http.HandlerFunc(ws.handleWho)))
	mux.HandleFunc("GET /health", ws.handleHealth)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics.Handler())
	}
	ws.handler = corsMiddleware(cfg.CORSOrigins, mux)
	return ws
}

// Handler returns the root handler.
func (ws *WebServer) Handler() http.Handler { return ws.handler }

// Serve listens until ctx is done. With a TLSSetup the server speaks
// HTTPS; Let's Encrypt setups also answer ACME challenges on :80.
func (ws *WebServer) Serve(ctx context.Context, tlsSetup *TLSSetup) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(ws.cfg.WebHost, fmt.Sprint(ws.cfg.WebPort)),
		Handler:           ws.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ws.limiter.cleanup()
			}
		}
	}()

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	})
	defer stop()

	var err error
	if tlsSetup != nil {
		srv.TLSConfig = tlsSetup.Config
		if tlsSetup.Manager != nil {
			go ws.serveACME(ctx, tlsSetup)
		}
		log.Printf("Web server listening on %s (HTTPS, %s)", srv.Addr, tlsSetup.Source)
		err = srv.ListenAndServeTLS("", "")
	} else {
		log.Printf("Web server listening on %s (HTTP)", srv.Addr)
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("web server: %w", err)
}

func (ws *WebServer) serveACME(ctx context.Context, tlsSetup *TLSSetup) {
	srv := &http.Server{Addr: ":80", Handler: tlsSetup.Manager.HTTPHandler(nil), ReadHeaderTimeout: 10 * time.Second}
	stop := context.AfterFunc(ctx, func() { srv.Close() })
	defer stop()
	log.Printf("ACME HTTP challenge listener on :80")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("ACME HTTP listener error: %v", err)
	}
}

// --- WebSocket ---

func (ws *WebServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var claims *Claims
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = bearerToken(r)
	}
	if token != "" {
		var err error
		if claims, err = ws.auth.ValidateToken(token); err != nil {
			writeJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}
	}

	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	conn.SetReadLimit(maxLineLength)

	var jsonMode atomic.Bool
	send := func(text string) error {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if jsonMode.Load() {
			return conn.WriteJSON(WSMessage{Type: "text", Text: text})
		}
		return conn.WriteMessage(websocket.TextMessage, []byte(text))
	}
	shutdown := func() error {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		return conn.Close()
	}
	ch := newBufferedChannel("websocket", forwardedAddr(r), ws.cfg.OutboundBuffer, send, shutdown)
	if _, ok := ws.app.OnNewConnection(ch); !ok {
		<-ch.Done()
		return
	}
	id := ch.ID()
	defer func() {
		ws.app.OnClose(id)
		ch.Close()
		<-ch.Done()
		log.Printf("[%s] WebSocket closed from %s", id, ch.RemoteAddr())
	}()

	if claims != nil {
		if err := ws.app.AutoLogin(id, claims.AccountID); err != nil {
			log.Printf("[%s] %v", id, err)
		}
	}
	stop := context.AfterFunc(r.Context(), func() { conn.Close() })
	defer stop()

	for {
		if ws.cfg.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(ws.cfg.IdleTimeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[%s] websocket read error: %v", id, err)
			}
			return
		}
		ws.handleFrame(id, string(data), &jsonMode)
	}
}

// handleFrame feeds one frame to the App. A JSON command frame switches
// the connection to JSON replies; anything else is one or more lines.
func (ws *WebServer) handleFrame(id ChannelID, frame string, jsonMode *atomic.Bool) {
	if strings.HasPrefix(strings.TrimSpace(frame), "{") {
		var msg WSMessage
		if err := json.Unmarshal([]byte(frame), &msg); err == nil {
			jsonMode.Store(true)
			switch msg.Type {
			case "command":
				ws.app.OnData(id, msg.Command)
			default:
				ws.app.Conns().EnqueueOutbound(id, fmt.Sprintf("Unknown message type: %s", msg.Type))
			}
			return
		}
	}
	for _, line := range strings.Split(strings.TrimRight(frame, "\r\n"), "\n") {
		ws.app.OnData(id, strings.TrimRight(line, "\r"))
	}
}

// forwardedAddr prefers X-Forwarded-For and X-Real-IP when behind a proxy.
func forwardedAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return r.RemoteAddr
}

// --- HTTP API ---

func (ws *WebServer) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, err := ws.auth.Login(req.Login, req.Password)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (ws *WebServer) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "authorization required")
		return
	}
	newToken, err := ws.auth.RefreshToken(token)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": newToken})
}

func (ws *WebServer) handleWho(w http.ResponseWriter, r *http.Request) {
	who := ws.app.Who()
	if who == nil {
		who = []WhoEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(who), "players": who})
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        Version,
		"uptime_seconds": time.Since(ws.startTime).Seconds(),
		"connections":    ws.app.Conns().Count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
