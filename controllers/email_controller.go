package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"mailwatch/models"
	"mailwatch/store"
	"mailwatch/utils"
)

// EmailController serves the classified-email history.
type EmailController struct {
	store  store.Store
	logger *logrus.Entry
}

func NewEmailController(s store.Store, logger *logrus.Entry) *EmailController {
	return &EmailController{
		store:  s,
		logger: logger,
	}
}

// GetEmails returns the whole history, most recent first.
func (ec *EmailController) GetEmails(c *fiber.Ctx) error {
	emails, err := ec.store.ListEmails(c.UserContext())
	if err != nil {
		utils.LogError("list_emails", err, nil)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch emails")
	}
	return c.JSON(models.EmailListResponse{Status: "success", Count: len(emails), Emails: emails})
}

// GetLatestEmails returns the newest ?count= records, most recent first.
func (ec *EmailController) GetLatestEmails(c *fiber.Ctx) error {
	count := c.QueryInt("count", store.DefaultLatestCount)
	emails, err := ec.store.LatestEmails(c.UserContext(), count)
	if err != nil {
		utils.LogError("latest_emails", err, map[string]interface{}{"count": count})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch emails")
	}
	return c.JSON(models.EmailListResponse{Status: "success", Count: len(emails), Emails: emails})
}

// ClearEmails empties the history.
func (ec *EmailController) ClearEmails(c *fiber.Ctx) error {
	if err := ec.store.ClearEmails(c.UserContext()); err != nil {
		utils.LogError("clear_emails", err, nil)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to clear email history")
	}
	ec.logger.Info("Email history cleared")
	return c.JSON(models.StatusResponse{Status: "success", Message: "Email history cleared"})
}

// CreateEmail records one classified email submitted by the analysis engine.
func (ec *EmailController) CreateEmail(c *fiber.Ctx) error {
	var rec models.EmailRecord
	if err := c.BodyParser(&rec); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := utils.ValidateStruct(rec); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}
	if rec.Type == "" {
		rec.Type = models.EmailTypeNonUrgent
	}
	// Ids and timestamps are assigned by the store.
	rec.ID = ""
	rec.Timestamp = ""

	if err := ec.store.AppendEmail(c.UserContext(), &rec); err != nil {
		utils.LogError("create_email", err, map[string]interface{}{"title": rec.Title})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to record email")
	}

	ec.logger.WithFields(logrus.Fields{
		"id":   rec.ID,
		"type": rec.Type,
	}).Info("Email recorded")
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(fiber.Map{"email": rec}))
}
