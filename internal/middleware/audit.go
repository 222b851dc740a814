package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/hotchain/hotledger/internal/auth"
)

// Audit emits one structured log line per request, tagged with its request
// id and signer.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if requestID := RequestIDOf(c); requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if signer, _ := c.Locals(auth.SignerLocal).(string); signer != "" {
			attrs = append(attrs, slog.String("signer", signer))
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
			if status >= 500 {
				logger.Error("request completed", attrs...)
			} else {
				logger.Info("request completed", attrs...)
			}
			return err
		}

		logger.Info("request completed", attrs...)
		return nil
	}
}
