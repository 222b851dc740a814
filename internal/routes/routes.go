package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hotchain/hotledger/internal/accounts"
	"github.com/hotchain/hotledger/internal/auth"
	"github.com/hotchain/hotledger/internal/config"
	"github.com/hotchain/hotledger/internal/middleware"
	"github.com/hotchain/hotledger/internal/scheduler"
	"github.com/hotchain/hotledger/internal/token"
)

const loginAttemptsPerMinute = 5

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Contract *token.Contract
	Queue    scheduler.Queue
	Accounts *accounts.Service
	Tokens   *auth.Service
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Contract == nil || d.Accounts == nil || d.Tokens == nil {
		return fmt.Errorf("contract, accounts and tokens are required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDOf(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	authHandler := auth.NewHandler(d.Accounts, d.Tokens)
	RegisterAuthRoutes(api, authHandler, middleware.LoginRateLimit(d.Cache, loginAttemptsPerMinute), middleware.BearerSigner(d.Tokens))
	tokenHandler := token.NewHandler(d.Contract)
	RegisterTableRoutes(api, tokenHandler)

	// Signed routes
	signed := []fiber.Handler{middleware.BearerSigner(d.Tokens)}
	if d.Cache != nil {
		signed = append(signed, middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterActionRoutes(api, tokenHandler, signed...)

	return nil
}
