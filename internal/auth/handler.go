package auth

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/hotchain/hotledger/internal/accounts"
)

// Handler exposes account registration and login endpoints.
type Handler struct {
	accounts *accounts.Service
	svc      *Service
}

// NewHandler constructs an auth HTTP handler.
func NewHandler(accts *accounts.Service, svc *Service) *Handler {
	return &Handler{accounts: accts, svc: svc}
}

type credentialsRequest struct {
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

// Register creates an account.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	account, err := h.accounts.Register(c.UserContext(), accounts.Credentials{Name: req.Name, Secret: req.Secret})
	if err != nil {
		if errors.Is(err, accounts.ErrAccountExists) || errors.Is(err, accounts.ErrReservedName) {
			return fiber.NewError(http.StatusConflict, err.Error())
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"name":       account.Name,
		"created_at": account.CreatedAt,
	})
}

// Login validates credentials and returns a bearer token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	account, err := h.accounts.Authenticate(c.UserContext(), accounts.Credentials{Name: req.Name, Secret: req.Secret})
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}
	token, err := h.svc.Issue(account)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(token)
}

// Logout revokes every token of the signing account.
func (h *Handler) Logout(c *fiber.Ctx) error {
	name, _ := c.Locals(SignerLocal).(string)
	if name == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing signer")
	}
	if err := h.accounts.RevokeTokens(c.UserContext(), name); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}

// SignerLocal is the fiber local holding the verified signer account.
const SignerLocal = "signer"
