package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RegisterHealthRoutes adds liveness/readiness style endpoints.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		dbStatus := "ok"
		redisStatus := "ok"

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if d.DB == nil {
			dbStatus = "in-memory"
		} else if err := d.DB.Ping(ctx); err != nil {
			dbStatus = err.Error()
		}
		if d.Cache == nil {
			redisStatus = "in-memory"
		} else if err := d.Cache.Ping(ctx).Err(); err != nil {
			redisStatus = err.Error()
		}

		status := http.StatusOK
		if !healthy(dbStatus) || !healthy(redisStatus) {
			status = http.StatusServiceUnavailable
		}
		round := fiber.Map{"active": false}
		if r, err := d.Contract.Round(ctx); err == nil {
			round = fiber.Map{"active": true, "round": r.Round, "clearing": r.Clearing}
		}
		body := fiber.Map{
			"status":    fiber.Map{"postgres": dbStatus, "redis": redisStatus},
			"bonus":     round,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		}
		if d.Queue != nil {
			if depth, err := d.Queue.Len(ctx); err == nil {
				body["queued_actions"] = depth
			} else {
				body["queued_actions"] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		return c.Status(status).JSON(body)
	})
}

func healthy(s string) bool {
	return s == "ok" || s == "in-memory"
}
