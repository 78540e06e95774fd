package routes

import (
	"github.com/gofiber/fiber/v2"

	"invoicehub-backend/apiroute"
	"invoicehub-backend/controllers"
	"invoicehub-backend/middlewares"
	"invoicehub-backend/querycache"
)

// Register wires all HTTP routes.
func Register(app *fiber.App, runner *apiroute.Runner, qc *querycache.Cache) {
	api := app.Group("/api")

	// Public portal auth endpoints
	api.Post("/registration", controllers.Register)
	api.Post("/login", controllers.Login)
	api.Post("/logout", controllers.Logout)

	// Portal endpoints (JWT session auth)
	portal := api.Group("/portal")
	portal.Use(middlewares.IsAuthenticatedHeader())
	portal.Post("/api_keys", controllers.CreateApiKey)
	portal.Get("/api_keys", controllers.ListApiKeys)
	portal.Delete("/api_keys/:id", controllers.RevokeApiKey)

	// API endpoints (Basic-Auth API keys, full runner pipeline)
	v1 := api.Group("/v1")
	for _, def := range controllers.InvoiceRoutes(qc) {
		v1.Add(def.Method, def.Path, runner.Handle(def))
	}
	for _, def := range controllers.CustomerRoutes(qc) {
		v1.Add(def.Method, def.Path, runner.Handle(def))
	}
}
