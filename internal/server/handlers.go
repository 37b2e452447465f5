package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"guessduel/internal/broadcast"
	"guessduel/internal/db"
	"guessduel/internal/gateway"
	"guessduel/internal/rooms"
	"guessduel/internal/wshub"
)

const (
	sendBuffer = 64
	readLimit  = 16 << 10
	qrSize     = 320
)

type Server struct {
	Gateway   *gateway.Gateway
	Hub       *wshub.Hub
	Rooms     *rooms.Store
	Stats     *broadcast.Broadcaster
	DB        *db.DB
	Log       *zap.Logger
	PublicURL string
	Origins   []string
	Started   time.Time
}

// handleWS upgrades the request and runs the connection's read loop until it closes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.Origins})
	if err != nil {
		s.Log.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	id := uuid.NewString()
	client := &wshub.Client{ID: id, Conn: conn, Send: make(chan []byte, sendBuffer)}
	s.Hub.Register(client)
	defer func() {
		s.Hub.Unregister(id)
		s.Gateway.Disconnect(id)
		s.Log.Debug("connection closed", zap.String("conn", id))
	}()
	go client.WritePump(ctx)

	s.Log.Debug("connection opened", zap.String("conn", id), zap.String("remote", r.RemoteAddr))
	s.Gateway.Connect(id)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				s.Log.Debug("read failed", zap.String("conn", id), zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		s.Gateway.Dispatch(ctx, id, data)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.Started).Seconds(),
	}
	code := http.StatusOK
	if s.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.DB.Ping(ctx); err != nil {
			resp["status"] = "db_error"
			resp["error"] = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			resp["database"] = "ok"
		}
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleMatches(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.Gateway.ListActiveMatches())
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.Stats.Current())
}

// handleMatchQR renders a PNG QR code pointing at the session's spectate page.
func (s *Server) handleMatchQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	session := ps.ByName("session")
	if _, err := s.Rooms.Get(session); err != nil {
		http.Error(w, "match not found", http.StatusNotFound)
		return
	}

	png, err := qrcode.Encode(s.baseURL(r)+"/spectate/"+session, qrcode.Medium, qrSize)
	if err != nil {
		s.Log.Error("qr generation failed", zap.String("session", session), zap.Error(err))
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// baseURL prefers the configured public URL and otherwise derives one from the request.
func (s *Server) baseURL(r *http.Request) string {
	if s.PublicURL != "" {
		return strings.TrimSuffix(s.PublicURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
