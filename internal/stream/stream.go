package stream

import (
	"encoding/json"
	"sync"
	"time"

	"emberscan/internal/metrics"
	"emberscan/internal/models"
	"emberscan/pkg/logger"
)

// Stream broadcasts head events to connected clients over WebSocket or SSE.
type Stream struct {
	clients    map[chan []byte]bool
	mu         sync.RWMutex
	buffer     []*models.HeadEvent
	bufferSize int
	logger     *logger.Logger
}

// NewStream creates a new stream instance
func NewStream(bufferSize int, log *logger.Logger) *Stream {
	return &Stream{
		clients:    make(map[chan []byte]bool),
		buffer:     make([]*models.HeadEvent, 0, bufferSize),
		bufferSize: bufferSize,
		logger:     log,
	}
}

// Publish sends a head event to all connected clients.
// Non-blocking: if a client channel is full the event is dropped for that client.
func (s *Stream) Publish(ev *models.HeadEvent) {
	if s == nil || ev == nil {
		return
	}

	s.mu.Lock()
	if len(s.clients) == 0 {
		// No clients connected, keep the most recent events for late joiners.
		if len(s.buffer) >= s.bufferSize {
			s.buffer = s.buffer[1:]
		}
		s.buffer = append(s.buffer, ev)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("Failed to marshal head event for streaming: %v", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for clientChan := range s.clients {
		select {
		case clientChan <- data:
		default:
			s.logger.Debug("Client channel full, dropping head event")
		}
	}
}

// Subscribe creates a new client channel for receiving events
// Returns channel and cleanup function
func (s *Stream) Subscribe() (chan []byte, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clientChan := make(chan []byte, s.bufferSize)

	// Replay buffered heads so a new client starts with recent history.
	go func() {
		s.mu.RLock()
		buffered := make([]*models.HeadEvent, len(s.buffer))
		copy(buffered, s.buffer)
		s.mu.RUnlock()

		for _, ev := range buffered {
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			select {
			case clientChan <- data:
			case <-time.After(1 * time.Second):
				// Client may have disconnected already.
				return
			}
		}
	}()

	s.clients[clientChan] = true
	metrics.StreamClients.Set(float64(len(s.clients)))

	cleanup := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.clients, clientChan)
		metrics.StreamClients.Set(float64(len(s.clients)))
		close(clientChan)
	}

	return clientChan, cleanup
}

// ClientCount returns the number of connected clients
func (s *Stream) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
