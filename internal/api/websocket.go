package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// handleWebSocket streams store events to one client. Each connection
// holds its own store subscription; the initial snapshot lets a client
// render without racing the stream.
func (s *Server) handleWebSocket(c *websocket.Conn) {
	defer c.Close()

	s.metrics.WSConnected()
	defer s.metrics.WSDisconnected()

	events, cancel := s.store.Subscribe()
	defer cancel()

	err := c.WriteJSON(fiber.Map{
		"type":    "snapshot",
		"records": s.store.Snapshot(),
		"counts":  s.store.Counts(),
	})
	if err != nil {
		s.logger.Warn("websocket snapshot write failed", zap.Error(err))
		return
	}

	// The client never sends application data; the read loop only
	// notices the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// Store teardown; tell the client before closing.
				c.WriteJSON(fiber.Map{"type": "closed"})
				return
			}
			if err := c.WriteJSON(ev); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
