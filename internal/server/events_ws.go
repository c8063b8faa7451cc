package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"biblio/internal/middleware"
)

// EventFeedUpgrade rejects plain HTTP requests to the WebSocket endpoint.
func (s *Server) EventFeedUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// EventFeedHandler streams workflow events to connected admins. The socket
// is read only to detect disconnects; all traffic flows server to client.
func (s *Server) EventFeedHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		if err := s.feed.Register(conn); err != nil {
			middleware.Logger.Warn("event feed connection refused", "error", err.Error())
			conn.Close()
			return
		}
		defer func() {
			s.feed.Unregister(conn)
			conn.Close()
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
}
