package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/hotchain/hotledger/internal/accounts"
	"github.com/hotchain/hotledger/internal/asset"
	"github.com/hotchain/hotledger/internal/config"
	"github.com/hotchain/hotledger/internal/logging"
)

func testConfig() config.Config {
	return config.Config{
		AppName:         "hotledger-test",
		AppEnv:          "test",
		Port:            "0",
		IdempotencyTTL:  time.Minute,
		TokenSecret:     "test-secret",
		TokenTTL:        time.Minute,
		ContractAccount: "hot.token",
		StakeAccount:    "hot.stake",
		CoreSymbol:      asset.MustSymbol("HOT", 6),
		BatchSize:       8,
		SettleMaxSteps:  16,
	}
}

type client struct {
	t   *testing.T
	app *fiber.App
}

func (c client) do(method, path, bearer, idemKey, body string) (int, map[string]any) {
	c.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+bearer)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	resp, err := c.app.Test(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(c.t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (c client) signup(name string) string {
	c.t.Helper()
	status, _ := c.do(http.MethodPost, "/api/v1/accounts", "", "", credsJSON(name))
	require.Equal(c.t, http.StatusCreated, status)
	return c.login(name)
}

func (c client) login(name string) string {
	c.t.Helper()
	status, body := c.do(http.MethodPost, "/api/v1/auth/login", "", "", credsJSON(name))
	require.Equal(c.t, http.StatusOK, status)
	tok, _ := body["access_token"].(string)
	require.NotEmpty(c.t, tok)
	return tok
}

func credsJSON(name string) string {
	return `{"name":"` + name + `","secret":"correct-horse"}`
}

func newTestServer(t *testing.T) (client, *Components) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	cfg := testConfig()
	logger := logging.Discard()
	comps, err := Assemble(context.Background(), cfg, nil, cache, logger)
	require.NoError(t, err)
	srv, err := New(cfg, comps, nil, cache, logger)
	require.NoError(t, err)
	return client{t: t, app: srv.App()}, comps
}

func TestServerActionFlow(t *testing.T) {
	c, comps := newTestServer(t)

	_, err := comps.Accounts.Provision(context.Background(), accounts.Credentials{Name: "hot.token", Secret: "correct-horse"})
	require.NoError(t, err)
	contract := c.login("hot.token")
	issuer := c.signup("hot.issuer")
	alice := c.signup("alice")

	status, _ := c.do(http.MethodPost, "/api/v1/actions/create", contract, "k-create",
		`{"issuer":"hot.issuer","maximum_supply":"1000000.000000 HOT"}`)
	require.Equal(t, http.StatusOK, status)

	issue := `{"to":"alice","quantity":"1000.000000 HOT","memo":"genesis"}`
	status, _ = c.do(http.MethodPost, "/api/v1/actions/issue", issuer, "k-issue", issue)
	require.Equal(t, http.StatusOK, status)

	// a retried request is replayed instead of issuing twice
	status, _ = c.do(http.MethodPost, "/api/v1/actions/issue", issuer, "k-issue", issue)
	require.Equal(t, http.StatusOK, status)

	status, body := c.do(http.MethodGet, "/api/v1/accounts/alice/balances/HOT", "", "", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "1000.000000 HOT", body["balance"])

	status, body = c.do(http.MethodGet, "/api/v1/stats/HOT", "", "", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "1000.000000 HOT", body["supply"])

	// alice cannot issue
	status, body = c.do(http.MethodPost, "/api/v1/actions/issue", alice, "k-alice", issue)
	require.Equal(t, http.StatusUnauthorized, status)
	require.NotEmpty(t, body["error"])
	require.NotEmpty(t, body["request_id"])

	status, _ = c.do(http.MethodPost, "/api/v1/actions/transfer", "", "k-anon",
		`{"from":"alice","to":"hot.issuer","quantity":"1.000000 HOT","memo":""}`)
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = c.do(http.MethodPost, "/api/v1/actions/transfer", alice, "",
		`{"from":"alice","to":"hot.issuer","quantity":"1.000000 HOT","memo":""}`)
	require.Equal(t, http.StatusBadRequest, status)

	_, err = comps.Contract.SupplyOf(context.Background(), "HOT")
	require.NoError(t, err)
}

func TestServerLogoutRevokesBearer(t *testing.T) {
	c, _ := newTestServer(t)
	alice := c.signup("alice")

	status, _ := c.do(http.MethodPost, "/api/v1/auth/logout", alice, "", "")
	require.Equal(t, http.StatusOK, status)

	status, _ = c.do(http.MethodPost, "/api/v1/actions/open", alice, "k-open",
		`{"owner":"alice","symbol":"6,HOT","ram_payer":"alice"}`)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestServerHealth(t *testing.T) {
	c, _ := newTestServer(t)
	status, body := c.do(http.MethodGet, "/healthz", "", "", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, map[string]any{"postgres": "in-memory", "redis": "ok"}, body["status"])
	require.Equal(t, map[string]any{"active": false}, body["bonus"])
	require.Equal(t, float64(0), body["queued_actions"])
}

func TestSetupRequiresBackendsOutsideDevelopment(t *testing.T) {
	cfg := testConfig()
	comps, err := Assemble(context.Background(), cfg, nil, nil, logging.Discard())
	require.NoError(t, err)

	cfg.AppEnv = "production"
	_, err = New(cfg, comps, nil, nil, logging.Discard())
	require.Error(t, err)
}

func TestServerReservesContractAccounts(t *testing.T) {
	c, comps := newTestServer(t)

	for _, name := range []string{"hot.token", "hot.stake"} {
		status, body := c.do(http.MethodPost, "/api/v1/accounts", "", "", credsJSON(name))
		require.Equal(t, http.StatusConflict, status, name)
		require.Contains(t, body["error"], "reserved")

		status, _ = c.do(http.MethodPost, "/api/v1/auth/login", "", "", credsJSON(name))
		require.Equal(t, http.StatusUnauthorized, status, name)
	}

	// staked funds cannot be taken by whoever signs up first
	_, err := comps.Accounts.Provision(context.Background(), accounts.Credentials{Name: "hot.token", Secret: "correct-horse"})
	require.NoError(t, err)
	_, err = comps.Accounts.Provision(context.Background(), accounts.Credentials{Name: "hot.stake", Secret: "operator-only"})
	require.NoError(t, err)
	contract := c.login("hot.token")
	issuer := c.signup("hot.issuer")
	alice := c.signup("alice")
	mallory := c.signup("mallory")

	status, _ := c.do(http.MethodPost, "/api/v1/actions/create", contract, "k1",
		`{"issuer":"hot.issuer","maximum_supply":"1000000.000000 HOT"}`)
	require.Equal(t, http.StatusOK, status)
	status, _ = c.do(http.MethodPost, "/api/v1/actions/issue", issuer, "k2",
		`{"to":"alice","quantity":"1000.000000 HOT","memo":""}`)
	require.Equal(t, http.StatusOK, status)
	status, _ = c.do(http.MethodPost, "/api/v1/actions/stakedtransfer", alice, "k3",
		`{"from":"alice","to":"hot.stake","quantity":"500.000000 HOT","memo":"stake"}`)
	require.Equal(t, http.StatusOK, status)

	status, _ = c.do(http.MethodPost, "/api/v1/actions/transfer", mallory, "k4",
		`{"from":"hot.stake","to":"mallory","quantity":"500.000000 HOT","memo":""}`)
	require.Equal(t, http.StatusUnauthorized, status)

	status, body := c.do(http.MethodGet, "/api/v1/accounts/hot.stake/balances/HOT", "", "", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "500.000000 HOT", body["balance"])
}

func TestAssembleProvisionsReservedAccounts(t *testing.T) {
	cfg := testConfig()
	cfg.ContractSecret = "contract-secret"
	comps, err := Assemble(context.Background(), cfg, nil, nil, logging.Discard())
	require.NoError(t, err)

	_, err = comps.Accounts.Authenticate(context.Background(), accounts.Credentials{Name: "hot.token", Secret: "contract-secret"})
	require.NoError(t, err)
	ok, err := comps.Accounts.IsAccount(context.Background(), "hot.stake")
	require.NoError(t, err)
	require.False(t, ok)
}
