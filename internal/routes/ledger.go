package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hotchain/hotledger/internal/token"
)

// RegisterTableRoutes exposes the read-only contract tables.
func RegisterTableRoutes(r fiber.Router, h *token.Handler) {
	r.Get("/stats/:code", h.Stats)
	r.Get("/accounts/:owner/balances/:code", h.Balance)
	r.Get("/bonus/round", h.Round)
	r.Get("/bonus/meta/:owner", h.Meta)
}

// RegisterActionRoutes accepts signed contract actions.
func RegisterActionRoutes(r fiber.Router, h *token.Handler, mw ...fiber.Handler) {
	handlers := append(mw, h.Action)
	r.Post("/actions/:name", handlers...)
}
