package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes mounts the push subscription: every message on the socket is
// a full trip document.
func RegisterRoutes(r fiber.Router, hub *Hub) {
	r.Get("/trips/:id", websocket.New(func(c *websocket.Conn) {
		tripID := c.Params("id")
		client := hub.Register(tripID)
		defer hub.Unregister(client)
		hub.log.Debug().Str("trip_id", tripID).Msg("subscriber connected")

		done := make(chan struct{})
		go func() {
			defer close(done)
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		hub.Unregister(client)
		<-done
		hub.log.Debug().Str("trip_id", tripID).Msg("subscriber disconnected")
	}))
}
