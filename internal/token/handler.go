package token

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/hotchain/hotledger/internal/auth"
	"github.com/hotchain/hotledger/internal/ledger"
)

// Handler exposes contract actions and read-only tables over HTTP.
type Handler struct {
	contract *Contract
}

// NewHandler constructs a contract handler.
func NewHandler(contract *Contract) *Handler {
	return &Handler{contract: contract}
}

// Action runs the action named in the path with the request body as its
// arguments. The verified bearer is the only signer.
func (h *Handler) Action(c *fiber.Ctx) error {
	signer, _ := c.Locals(auth.SignerLocal).(string)
	if signer == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing signer")
	}
	name := c.Params("name")
	ctx := auth.WithSigners(c.UserContext(), signer)

	out, err := h.contract.Dispatch(ctx, name, c.Body())
	if err != nil {
		return fiber.NewError(StatusOf(err), err.Error())
	}
	body := fiber.Map{"action": name, "signer": signer}
	if out != nil {
		body["result"] = out
	}
	return c.Status(http.StatusOK).JSON(body)
}

// Stats returns the supply row of a token.
func (h *Handler) Stats(c *fiber.Ctx) error {
	st, err := h.contract.SupplyOf(c.UserContext(), c.Params("code"))
	if err != nil {
		return fiber.NewError(StatusOf(err), err.Error())
	}
	return c.JSON(fiber.Map{
		"supply":     st.Supply.String(),
		"max_supply": st.MaxSupply.String(),
		"issuer":     st.Issuer,
	})
}

// Balance returns one balance row.
func (h *Handler) Balance(c *fiber.Ctx) error {
	bal, err := h.contract.BalanceOf(c.UserContext(), c.Params("owner"), c.Params("code"))
	if err != nil {
		return fiber.NewError(StatusOf(err), err.Error())
	}
	return c.JSON(fiber.Map{"owner": c.Params("owner"), "balance": bal.String()})
}

// Round returns the bonus round registry.
func (h *Handler) Round(c *fiber.Ctx) error {
	r, err := h.contract.Round(c.UserContext())
	if err != nil {
		return fiber.NewError(StatusOf(err), err.Error())
	}
	return c.JSON(fiber.Map{
		"round":     r.Round,
		"clearing":  r.Clearing,
		"clearbase": r.Clearbase,
		"bonus":     r.Bonus.String(),
		"minimum":   r.Minimum.String(),
		"remaining": r.Remaining.String(),
		"collector": r.Collector,
	})
}

// Meta returns the bonus bookkeeping of one account.
func (h *Handler) Meta(c *fiber.Ctx) error {
	m, err := h.contract.BonusMeta(c.UserContext(), c.Params("owner"))
	if err != nil {
		return fiber.NewError(StatusOf(err), err.Error())
	}
	return c.JSON(fiber.Map{
		"owner":   m.Owner,
		"round":   m.Round,
		"balance": m.Balance,
		"stake":   m.Stake,
		"bonus":   m.Bonus.String(),
	})
}

// StatusOf maps a contract error to an HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, ErrUnknownAction):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ledger.ErrSupplyCapExceeded):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
