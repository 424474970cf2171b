package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"mailwatch/models"
	"mailwatch/relay"
	"mailwatch/store"
	"mailwatch/utils"
)

type HealthController struct {
	store store.Store
	hub   *relay.Hub
}

func NewHealthController(s store.Store, hub *relay.Hub) *HealthController {
	return &HealthController{store: s, hub: hub}
}

// GetHealth reports store and relay counters.
func (hc *HealthController) GetHealth(c *fiber.Ctx) error {
	ctx := c.UserContext()

	emails, err := hc.store.ListEmails(ctx)
	if err != nil {
		utils.LogError("health_emails", err, nil)
		return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, "Store unavailable")
	}
	sensitive, err := hc.store.SensitiveWords(ctx)
	if err != nil {
		utils.LogError("health_sensitive_words", err, nil)
		return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, "Store unavailable")
	}
	watch, err := hc.store.WatchWords(ctx)
	if err != nil {
		utils.LogError("health_watch_words", err, nil)
		return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, "Store unavailable")
	}

	return c.JSON(fiber.Map{
		"status":                "healthy",
		"service":               "Email Alert API",
		"timestamp":             time.Now().Format(models.TimestampLayout),
		"total_emails":          len(emails),
		"total_sensitive_words": len(sensitive.All),
		"total_watch_words":     len(watch),
		"relay_connections":     hc.hub.Count(),
	})
}
