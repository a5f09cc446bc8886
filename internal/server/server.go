// Package server exposes the HTTP surface: the messaging webhook, the
// synchronous process API, temp image serving and the health probe.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/pochenphys/Group-Project/internal/line"
	"github.com/pochenphys/Group-Project/internal/store"
)

const (
	serviceName = "fridgeline"

	// maxWebhookBody bounds one webhook delivery.
	maxWebhookBody = 1 << 20
)

// placeholderPNG is a 1x1 transparent PNG served when a temp image has
// expired. Chat clients retry broken image URLs aggressively, so the
// endpoint never 404s.
const placeholderPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="

// EventProcessor consumes normalized events.
type EventProcessor interface {
	HandleEvents(ctx context.Context, events []line.Event)
	ProcessEvent(ctx context.Context, ev line.Event) []line.Message
}

// Server is the HTTP front of the bot.
type Server struct {
	addr          string
	channelSecret string
	processor     EventProcessor
	images        *store.TTL[[]byte]
	rateLimiter   *WebhookRateLimiter

	httpServer *http.Server
	mux        *http.ServeMux
}

// New builds the Server and registers its routes. webhookRatePerMinute
// bounds deliveries per source address; zero selects the default.
func New(addr, channelSecret string, processor EventProcessor, images *store.TTL[[]byte], webhookRatePerMinute int) *Server {
	s := &Server{
		addr:          addr,
		channelSecret: channelSecret,
		processor:     processor,
		images:        images,
		rateLimiter:   NewWebhookRateLimiter(webhookRatePerMinute),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("POST /api/process_message", s.handleProcessMessage)
	mux.HandleFunc("GET /temp_image/{id}", s.handleTempImage)
	mux.HandleFunc("GET /health", s.handleHealth)
	s.mux = mux
	return s
}

// Handler exposes the route table, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves until ctx is cancelled, then drains with a grace period.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	slog.Info("http server listening", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// handleWebhook verifies the delivery and acknowledges before
// processing. The platform retries slow webhooks, so the 200 goes out
// first and the events run on a detached goroutine.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.rateLimiter.Allow(clientKey(r)) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
		return
	}

	signature := r.Header.Get("X-Line-Signature")
	if signature == "" {
		slog.Warn("webhook missing signature", "remote", r.RemoteAddr)
		http.Error(w, "missing signature", http.StatusBadRequest)
		return
	}
	if !line.VerifySignature(s.channelSecret, body, signature) {
		slog.Warn("webhook signature mismatch", "remote", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	events, err := line.ParseWebhook(body)
	if err != nil {
		slog.Warn("webhook parse failed", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if len(events) > 0 {
		go s.processor.HandleEvents(context.Background(), events)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleProcessMessage answers one event synchronously. It is the same
// contract this service speaks to its own backends, so flows can be
// chained or exercised without a webhook delivery.
func (s *Server) handleProcessMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Event line.Event `json:"event"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.Event.UserID == "" {
		http.Error(w, "missing user_id", http.StatusBadRequest)
		return
	}

	msgs := s.processor.ProcessEvent(r.Context(), req.Event)
	if msgs == nil {
		msgs = []line.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleTempImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if data, ok := s.images.Get(id); ok {
		w.Header().Set("Content-Type", http.DetectContentType(data))
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		w.Write(data)
		return
	}

	placeholder, _ := base64.StdEncoding.DecodeString(placeholderPNG)
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Write(placeholder)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": serviceName})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
