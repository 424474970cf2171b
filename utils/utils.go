package utils

import (
	"github.com/gofiber/fiber/v2"
)

// ErrorResponse writes the API's error body: {"status":"error","message":...}.
func ErrorResponse(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"status":  "error",
		"message": message,
	})
}

// SuccessResponse merges fields into a {"status":"success"} body.
func SuccessResponse(fields fiber.Map) fiber.Map {
	out := fiber.Map{"status": "success"}
	for k, v := range fields {
		out[k] = v
	}
	return out
}
