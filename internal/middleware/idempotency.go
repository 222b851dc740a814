package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hotchain/hotledger/internal/auth"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idempotency:v1:"
	inProgressMarker     = "__in_progress__"
	idempotencyTimeout   = 2 * time.Second
)

type storedResponse struct {
	Status  int               `json:"status"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

type idempotencyCache struct {
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// Idempotency makes action submission safe to retry: the first response for
// an Idempotency-Key is stored in Redis and replayed for the same signer and
// path. Failed actions release their key.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	ic := idempotencyCache{cache: cache, ttl: ttl, logger: logger}
	return func(c *fiber.Ctx) error {
		switch strings.ToUpper(c.Method()) {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := c.Get(idempotencyKeyHeader)
		if key == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing Idempotency-Key header")
		}
		signer, _ := c.Locals(auth.SignerLocal).(string)
		cacheKey := idempotencyPrefix + signer + ":" + c.Path() + ":" + key
		log := logger.With(slog.String("key", key), slog.String("signer", signer))

		stored, found, err := ic.lookup(cacheKey)
		switch {
		case err != nil:
			log.Error("idempotency lookup failed", slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
		case found:
			if stored == nil {
				return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
			}
			return replay(c, *stored)
		}

		reserved, err := ic.reserve(cacheKey)
		if err != nil {
			log.Error("idempotency reservation failed", slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency reservation failure")
		}
		if !reserved {
			return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
		}

		if err := c.Next(); err != nil {
			ic.release(cacheKey)
			return err
		}

		if err := ic.store(cacheKey, capture(c)); err != nil {
			log.Error("failed to persist idempotent response", slog.Any("error", err))
			ic.release(cacheKey)
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency persistence failure")
		}
		return nil
	}
}

// lookup reports a nil response while the key is reserved but unanswered.
func (ic idempotencyCache) lookup(cacheKey string) (*storedResponse, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyTimeout)
	defer cancel()

	cached, err := ic.cache.Get(ctx, cacheKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if cached == inProgressMarker {
		return nil, true, nil
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(cached), &stored); err != nil {
		ic.logger.Warn("failed to decode stored idempotent response", slog.String("cache_key", cacheKey), slog.Any("error", err))
		return nil, true, nil
	}
	return &stored, true, nil
}

func (ic idempotencyCache) reserve(cacheKey string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyTimeout)
	defer cancel()
	return ic.cache.SetNX(ctx, cacheKey, inProgressMarker, ic.ttl).Result()
}

func (ic idempotencyCache) store(cacheKey string, resp storedResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyTimeout)
	defer cancel()
	return ic.cache.Set(ctx, cacheKey, payload, ic.ttl).Err()
}

func (ic idempotencyCache) release(cacheKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyTimeout)
	defer cancel()
	if err := ic.cache.Del(ctx, cacheKey).Err(); err != nil {
		ic.logger.Warn("failed to release idempotency key", slog.String("cache_key", cacheKey), slog.Any("error", err))
	}
}

func capture(c *fiber.Ctx) storedResponse {
	resp := storedResponse{
		Status:  c.Response().StatusCode(),
		Body:    string(c.Response().Body()),
		Headers: map[string]string{},
	}
	c.Response().Header.VisitAll(func(k, v []byte) {
		resp.Headers[string(k)] = string(v)
	})
	return resp
}

func replay(c *fiber.Ctx, stored storedResponse) error {
	for header, value := range stored.Headers {
		if strings.EqualFold(header, fiber.HeaderContentLength) || strings.EqualFold(header, requestIDHeader) {
			continue
		}
		c.Set(header, value)
	}
	return c.Status(stored.Status).SendString(stored.Body)
}
