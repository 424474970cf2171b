package controller

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"mailwatch/models"
	"mailwatch/store"
	"mailwatch/utils"
)

// WordController manages the sensitive and watch word lists.
type WordController struct {
	store  store.Store
	logger *logrus.Entry
}

func NewWordController(s store.Store, logger *logrus.Entry) *WordController {
	return &WordController{
		store:  s,
		logger: logger,
	}
}

func (wc *WordController) GetSensitiveWords(c *fiber.Ctx) error {
	set, err := wc.store.SensitiveWords(c.UserContext())
	if err != nil {
		return wc.internal(c, "get_sensitive_words", err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"default_words": set.Default,
		"custom_words":  set.Custom,
		"all_words":     set.All,
	}))
}

func (wc *WordController) AddSensitiveWord(c *fiber.Ctx) error {
	word, ok := parseWord(c)
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Missing word parameter")
	}
	set, err := wc.store.AddSensitiveWord(c.UserContext(), word)
	if err != nil {
		return wc.mutationError(c, "add_sensitive_word", err)
	}

	word = models.NormalizeWord(word)
	wc.logger.WithField("word", word).Info("Added custom sensitive word")
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message":      fmt.Sprintf("Added sensitive word: %s", word),
		"custom_words": set.Custom,
		"all_words":    set.All,
	}))
}

func (wc *WordController) RemoveSensitiveWord(c *fiber.Ctx) error {
	word, ok := parseWord(c)
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Missing word parameter")
	}
	set, err := wc.store.RemoveSensitiveWord(c.UserContext(), word)
	if err != nil {
		return wc.mutationError(c, "remove_sensitive_word", err)
	}

	word = models.NormalizeWord(word)
	wc.logger.WithField("word", word).Info("Removed custom sensitive word")
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message":      fmt.Sprintf("Removed sensitive word: %s", word),
		"custom_words": set.Custom,
		"all_words":    set.All,
	}))
}

func (wc *WordController) ResetSensitiveWords(c *fiber.Ctx) error {
	if err := wc.store.ResetSensitiveWords(c.UserContext()); err != nil {
		return wc.internal(c, "reset_sensitive_words", err)
	}
	wc.logger.Info("Custom sensitive words list reset")
	return c.JSON(models.StatusResponse{Status: "success", Message: "Custom sensitive words list reset"})
}

func (wc *WordController) GetWatchWords(c *fiber.Ctx) error {
	words, err := wc.store.WatchWords(c.UserContext())
	if err != nil {
		return wc.internal(c, "get_watch_words", err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"watch_words": words}))
}

func (wc *WordController) AddWatchWord(c *fiber.Ctx) error {
	word, ok := parseWord(c)
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Missing word parameter")
	}
	words, err := wc.store.AddWatchWord(c.UserContext(), word)
	if err != nil {
		return wc.mutationError(c, "add_watch_word", err)
	}

	word = models.NormalizeWord(word)
	wc.logger.WithField("word", word).Info("Added watch word")
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message":     fmt.Sprintf("Added watch word: %s", word),
		"watch_words": words,
	}))
}

func (wc *WordController) RemoveWatchWord(c *fiber.Ctx) error {
	word, ok := parseWord(c)
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Missing word parameter")
	}
	words, err := wc.store.RemoveWatchWord(c.UserContext(), word)
	if err != nil {
		return wc.mutationError(c, "remove_watch_word", err)
	}

	word = models.NormalizeWord(word)
	wc.logger.WithField("word", word).Info("Removed watch word")
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message":     fmt.Sprintf("Removed watch word: %s", word),
		"watch_words": words,
	}))
}

func (wc *WordController) ResetWatchWords(c *fiber.Ctx) error {
	if err := wc.store.ResetWatchWords(c.UserContext()); err != nil {
		return wc.internal(c, "reset_watch_words", err)
	}
	wc.logger.Info("Watch words list reset")
	return c.JSON(models.StatusResponse{Status: "success", Message: "Watch words list reset"})
}

// parseWord reads {word} from the body. Whitespace-only words pass here and
// are rejected by the store as empty.
func parseWord(c *fiber.Ctx) (string, bool) {
	var req models.WordRequest
	if err := c.BodyParser(&req); err != nil {
		return "", false
	}
	if err := utils.ValidateStruct(req); err != nil {
		return "", false
	}
	return req.Word, true
}

func (wc *WordController) mutationError(c *fiber.Ctx, op string, err error) error {
	switch {
	case errors.Is(err, store.ErrEmptyWord):
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Word cannot be empty")
	case errors.Is(err, store.ErrWordExists):
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Word already exists")
	case errors.Is(err, store.ErrWordNotFound):
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Word not found")
	}
	return wc.internal(c, op, err)
}

func (wc *WordController) internal(c *fiber.Ctx, op string, err error) error {
	utils.LogError(op, err, map[string]interface{}{"path": c.Path()})
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Internal server error")
}
