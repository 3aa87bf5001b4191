package websocket

import (
	"voice2note-be/internal/tenant"

	"github.com/gofiber/websocket/v2"
)

// ServeWs registers the connection and blocks until it closes.
func ServeWs(hub *Hub, c *websocket.Conn, id tenant.ID) {
	client := &Client{Hub: hub, Conn: c, Tenant: id, Send: make(chan []byte, 256)}
	if !hub.Register(client) {
		_ = c.Close()
		return
	}

	go client.writePump()
	client.readPump()
}
