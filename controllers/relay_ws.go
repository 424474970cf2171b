package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"mailwatch/relay"
)

type RelayController struct {
	hub    *relay.Hub
	logger *logrus.Entry
}

func NewRelayController(hub *relay.Hub, logger *logrus.Entry) *RelayController {
	return &RelayController{
		hub:    hub,
		logger: logger,
	}
}

// RequireUpgrade rejects plain HTTP requests on the relay path.
func (rc *RelayController) RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// HandleRelayWS serves one relay peer for the lifetime of its socket.
func (rc *RelayController) HandleRelayWS(c *websocket.Conn) {
	remote := c.RemoteAddr().String()
	rc.logger.WithField("remote", remote).Debug("Upgraded relay connection")
	rc.hub.Serve(c, remote)
}

// Handler returns the Fiber handler performing the upgrade.
func (rc *RelayController) Handler() fiber.Handler {
	return websocket.New(rc.HandleRelayWS)
}
