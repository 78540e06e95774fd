package main

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"invoicehub-backend/apiroute"
	"invoicehub-backend/audit"
	"invoicehub-backend/auth"
	"invoicehub-backend/database"
	"invoicehub-backend/idempotency"
	"invoicehub-backend/middlewares"
	"invoicehub-backend/models"
	"invoicehub-backend/querycache"
	"invoicehub-backend/ratelimit"
	"invoicehub-backend/routes"
)

// envInt reads an int env var with a default fallback.
func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func main() {
	// ---- Database (tenants, users, credentials, audit log)
	database.Connect()
	database.AutoMigrate()

	// ---- Shared store (limiter, idempotency, query cache)
	shared := database.ConnectStore()

	// ---- Core pipeline
	resolver := auth.NewResolver(database.NewDirectory(database.DB))
	limiter := ratelimit.New(shared, envInt("CONCURRENT_REQUEST_LIMIT", 10))
	idem := idempotency.New(shared)
	qc := querycache.New(shared)

	var suppressed []string
	if v := os.Getenv("AUDIT_SUPPRESSED_ROUTES"); v != "" {
		suppressed = strings.Split(v, ",")
	}
	auditor := audit.New(func(entry *models.AuditLog) error {
		return database.DB.Create(entry).Error
	}, suppressed...)

	runner := &apiroute.Runner{
		Auth:        resolver,
		Limiter:     limiter,
		Idempotency: idem,
		Auditor:     auditor,
	}

	// ---- Limits (configurable via env)
	bodyLimitBytes := envInt("BODY_LIMIT_BYTES", 0)
	if bodyLimitBytes <= 0 {
		bodyLimitBytes = envInt("BODY_LIMIT_MB", 4) * 1024 * 1024
	}

	// ---- Fiber app with global error handler + body limit
	app := fiber.New(fiber.Config{
		ErrorHandler: middlewares.ErrorHandler,
		BodyLimit:    bodyLimitBytes,
	})

	// ---- CORS
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowCredentials: false, // using Basic/Bearer tokens, not cookies
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Idempotency-Key, X-Request-Id, X-Correlation-Id",
	}))

	// ---- Observability
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// ---- Routes
	routes.Register(app, runner, qc)

	// ---- Start
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := app.Listen(":" + port); err != nil {
		log.Fatal(err)
	}
}
