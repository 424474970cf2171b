package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	controller "mailwatch/controllers"
	"mailwatch/middleware"
	"mailwatch/relay"
	"mailwatch/store"
	"mailwatch/utils"
)

// Dependencies carries everything the HTTP surface is built from.
type Dependencies struct {
	Store              store.Store
	Hub                *relay.Hub
	StaticDir          string
	CORSAllowedOrigins []string
	WordMutationMax    int
	RateLimitStorage   fiber.Storage
	// DisableAccessLog keeps tests quiet.
	DisableAccessLog bool
}

func SetupRelayRoutes(app *fiber.App, deps Dependencies) {
	relayController := controller.NewRelayController(deps.Hub, utils.Component("relay"))
	handler := relayController.Handler()

	app.Get("/ws", relayController.RequireUpgrade, handler)

	// Viewers may also connect to the root path; plain GETs fall through to
	// the static index.
	app.Get("/", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return handler(c)
		}
		return c.Next()
	})
}

func SetupAPIRoutes(app *fiber.App, deps Dependencies) {
	emailController := controller.NewEmailController(deps.Store, utils.Component("emails"))
	wordController := controller.NewWordController(deps.Store, utils.Component("words"))
	healthController := controller.NewHealthController(deps.Store, deps.Hub)

	handlers := []fiber.Handler{}
	if !deps.DisableAccessLog {
		handlers = append(handlers, logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}
	api := app.Group("/api", handlers...)

	api.Get("/health", healthController.GetHealth)

	// Email history routes
	emails := api.Group("/emails")
	emails.Get("/", emailController.GetEmails)
	emails.Get("/latest", emailController.GetLatestEmails)
	emails.Post("/", emailController.CreateEmail)
	emails.Post("/clear", emailController.ClearEmails)

	limit := middleware.WordMutationLimiter(deps.WordMutationMax, deps.RateLimitStorage)

	// Sensitive word routes
	sensitive := api.Group("/sensitive_words")
	sensitive.Get("/", wordController.GetSensitiveWords)
	sensitive.Post("/", limit, wordController.AddSensitiveWord)
	sensitive.Delete("/", limit, wordController.RemoveSensitiveWord)
	sensitive.Post("/reset", limit, wordController.ResetSensitiveWords)

	// Watch word routes
	watch := api.Group("/watch_words")
	watch.Get("/", wordController.GetWatchWords)
	watch.Post("/", limit, wordController.AddWatchWord)
	watch.Delete("/", limit, wordController.RemoveWatchWord)
	watch.Post("/reset", limit, wordController.ResetWatchWords)
}

func SetupRoutes(app *fiber.App, deps Dependencies) {
	app.Use(recover.New())
	app.Use(middleware.CORS(deps.CORSAllowedOrigins))

	// Setup health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
	})

	SetupRelayRoutes(app, deps)
	SetupAPIRoutes(app, deps)

	if deps.StaticDir != "" {
		app.Static("/", deps.StaticDir, fiber.Static{Index: "index.html"})
	}

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "The requested resource was not found")
	})
}
