package handler

import (
	"voice2note-be/internal/pkg/logger"
	"voice2note-be/internal/pkg/serverutils"
	"voice2note-be/internal/tenant"
	internalWS "voice2note-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// StatusHandler streams pipeline status changes of the caller's notes over a websocket.
type StatusHandler struct {
	hub    *internalWS.Hub
	logger logger.ILogger
}

func NewStatusHandler(hub *internalWS.Hub, log logger.ILogger) *StatusHandler {
	return &StatusHandler{
		hub:    hub,
		logger: log,
	}
}

func (h *StatusHandler) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	r.Get("/notes/ws", auth, h.upgrade, websocket.New(h.serve))
}

func (h *StatusHandler) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

func (h *StatusHandler) serve(c *websocket.Conn) {
	id, ok := c.Locals(serverutils.TenantLocal).(tenant.ID)
	if !ok {
		h.logger.Warn("StatusHandler", "websocket without tenant", nil)
		_ = c.Close()
		return
	}

	h.logger.Info("StatusHandler", "status feed connected", map[string]interface{}{"tenant": id.String()})
	internalWS.ServeWs(h.hub, c, id)
}
