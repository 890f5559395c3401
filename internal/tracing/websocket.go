package tracing

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/prasenjit/go-mockserver/internal/models"
)

// WebSocketHandler streams new traces to WebSocket clients.
// Query parameters project, endpoint, method and stage narrow the stream.
type WebSocketHandler struct {
	service  *Service
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(service *Service, logger zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP handles WebSocket upgrade and streaming
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := &models.TraceFilter{
		Project:  q.Get("project"),
		Endpoint: q.Get("endpoint"),
		Method:   q.Get("method"),
		Stage:    q.Get("stage"),
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	subID, traceChan := h.service.Subscribe()
	defer h.service.Unsubscribe(subID)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	// reader goroutine notices the client closing
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case trace, ok := <-traceChan:
			if !ok {
				return
			}
			if !Matches(trace, filter) {
				continue
			}
			if err := conn.WriteJSON(trace); err != nil {
				h.logger.Debug().Err(err).Msg("Failed to send trace")
				return
			}

		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}
