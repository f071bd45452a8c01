package handler

import (
	"net/http"
	"time"

	"emberscan/internal/stream"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// StreamHandler handles WebSocket and SSE connections for head events.
type StreamHandler struct {
	stream *stream.Stream
}

func NewStreamHandler(s *stream.Stream) *StreamHandler {
	return &StreamHandler{stream: s}
}

// HandleWebSocket streams JSON-encoded head events over a WebSocket.
func (h *StreamHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to upgrade connection"})
		return
	}
	defer conn.Close()

	clientChan, cleanup := h.stream.Subscribe()
	defer cleanup()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case data, ok := <-clientChan:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleSSE streams head events as Server-Sent Events.
func (h *StreamHandler) HandleSSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	clientChan, cleanup := h.stream.Subscribe()
	defer cleanup()

	for {
		select {
		case data, ok := <-clientChan:
			if !ok {
				return
			}
			c.SSEvent("head", string(data))
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}
