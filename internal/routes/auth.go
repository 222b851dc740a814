package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hotchain/hotledger/internal/auth"
)

// RegisterAuthRoutes wires account registration and session endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter, bearer fiber.Handler) {
	r.Post("/accounts", h.Register)

	group := r.Group("/auth")
	if rateLimiter != nil {
		group.Post("/login", rateLimiter, h.Login)
	} else {
		group.Post("/login", h.Login)
	}
	group.Post("/logout", bearer, h.Logout)
}
