package token

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/hotchain/hotledger/internal/auth"
	"github.com/hotchain/hotledger/internal/ledger"
)

func newTestApp(f *fixture) *fiber.App {
	h := NewHandler(f.c)
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if signer := c.Get("X-Test-Signer"); signer != "" {
			c.Locals(auth.SignerLocal, signer)
		}
		return c.Next()
	})
	app.Post("/actions/:name", h.Action)
	app.Get("/stats/:code", h.Stats)
	app.Get("/accounts/:owner/balances/:code", h.Balance)
	app.Get("/bonus/round", h.Round)
	app.Get("/bonus/meta/:owner", h.Meta)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, signer, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if signer != "" {
		req.Header.Set("X-Test-Signer", signer)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if resp.Header.Get(fiber.HeaderContentType) == fiber.MIMEApplicationJSON {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestHandlerActions(t *testing.T) {
	f := newFixture(t, 0, map[string]int64{"alice": 1_000_000, "bob": 0})
	app := newTestApp(f)

	status, _ := doJSON(t, app, http.MethodPost, "/actions/transfer", "",
		`{"from":"alice","to":"bob","quantity":"0.100000 HOT","memo":""}`)
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = doJSON(t, app, http.MethodPost, "/actions/transfer", "bob",
		`{"from":"alice","to":"bob","quantity":"0.100000 HOT","memo":""}`)
	require.Equal(t, http.StatusUnauthorized, status)

	status, body := doJSON(t, app, http.MethodPost, "/actions/transfer", "alice",
		`{"from":"alice","to":"bob","quantity":"0.100000 HOT","memo":"coffee"}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "alice", body["signer"])

	status, _ = doJSON(t, app, http.MethodPost, "/actions/transfer", "alice",
		`{"from":"alice","to":"bob","quantity":"5.000000 HOT","memo":""}`)
	require.Equal(t, http.StatusUnprocessableEntity, status)

	status, _ = doJSON(t, app, http.MethodPost, "/actions/mint", "alice", `{}`)
	require.Equal(t, http.StatusNotFound, status)

	status, body = doJSON(t, app, http.MethodGet, "/accounts/bob/balances/HOT", "", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "0.100000 HOT", body["balance"])

	status, body = doJSON(t, app, http.MethodGet, "/stats/HOT", "", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "1.000000 HOT", body["supply"])
	require.Equal(t, issuer, body["issuer"])

	status, _ = doJSON(t, app, http.MethodGet, "/bonus/round", "", "")
	require.Equal(t, http.StatusNotFound, status)
}

func TestHandlerBonusFlow(t *testing.T) {
	f := newFixture(t, 0, map[string]int64{"alice": 1_000})
	app := newTestApp(f)

	status, _ := doJSON(t, app, http.MethodPost, "/actions/freezebonus", issuer,
		`{"bonus":"0.000100 HOT","minimum":"0.000001 HOT","collector":"treasury"}`)
	require.Equal(t, http.StatusOK, status)

	status, body := doJSON(t, app, http.MethodPost, "/actions/clearbonus", issuer, "")
	require.Equal(t, http.StatusOK, status)
	result, ok := body["result"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, true, result["done"])
	require.Equal(t, []any{"alice", issuer}, result["payouts"])

	status, body = doJSON(t, app, http.MethodPost, "/actions/paybonus", issuer, `{"to":"alice"}`)
	require.Equal(t, http.StatusOK, status)
	result = body["result"].(map[string]any)
	require.Equal(t, "0.000100 HOT", result["paid"])

	status, body = doJSON(t, app, http.MethodGet, "/bonus/round", "", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["clearing"])
	require.Equal(t, "0.000000 HOT", body["remaining"])

	status, body = doJSON(t, app, http.MethodGet, "/bonus/meta/alice", "", "")
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 1, body["round"])

	status, _ = doJSON(t, app, http.MethodPost, "/actions/closebonus", issuer, `{"force":true}`)
	require.Equal(t, http.StatusUnauthorized, status)
	status, _ = doJSON(t, app, http.MethodPost, "/actions/closebonus", issuer, `{"force":false}`)
	require.Equal(t, http.StatusOK, status)

	status, body = doJSON(t, app, http.MethodGet, "/bonus/round", "", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, false, body["clearing"])
}

func TestStatusOf(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, StatusOf(ledger.ErrInvalidArgument))
	require.Equal(t, http.StatusConflict, StatusOf(ledger.ErrDuplicate))
	require.Equal(t, http.StatusInternalServerError, StatusOf(ledger.ErrInvariantViolation))
}
