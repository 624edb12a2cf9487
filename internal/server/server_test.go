package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/editionshop/internal/crypto"
	"github.com/alanyoungcy/editionshop/internal/domain"
	"github.com/alanyoungcy/editionshop/internal/metrics"
	"github.com/alanyoungcy/editionshop/internal/server"
	"github.com/alanyoungcy/editionshop/internal/server/handler"
	"github.com/alanyoungcy/editionshop/internal/server/middleware"
	"github.com/alanyoungcy/editionshop/internal/service"
	"github.com/alanyoungcy/editionshop/internal/store/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var (
	admin = common.HexToAddress("0xa1")
	buyer = common.HexToAddress("0xb1")
	start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

type api struct {
	t      *testing.T
	srv    *httptest.Server
	derive *crypto.Deriver
}

func newAPI(t *testing.T, cfg server.Config, limiter domain.RateLimiter) *api {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := fixedClock{now: start}
	derive := crypto.NewDeriver(crypto.DefaultProgramID)
	m := metrics.New()
	shop := service.NewShop(service.NewCore(memory.NewRepository(), derive, logger,
		service.WithClock(clock), service.WithMetrics(m)))

	h := server.Handlers{
		Health:    handler.NewHealthHandler(nil, logger),
		Status:    handler.NewStatusHandler("memory", derive.Program(), "test"),
		Stores:    handler.NewStoreHandler(shop.Stores, logger),
		Resources: handler.NewResourceHandler(shop.Resources, logger),
		Markets:   handler.NewMarketHandler(shop.Markets, clock.Now, logger),
		Trades:    handler.NewTradeHandler(shop.Trades, logger),
		Payouts:   handler.NewPayoutHandler(shop.Payouts, logger),
		Tokens:    handler.NewTokenHandler(shop.Tokens, true, logger),
		Derive:    handler.NewDeriveHandler(derive),
	}
	srv := httptest.NewServer(server.NewHandler(cfg, h, nil, limiter, m, logger))
	t.Cleanup(srv.Close)
	return &api{t: t, srv: srv, derive: derive}
}

func insecure() server.Config {
	return server.Config{Auth: middleware.AuthConfig{Insecure: true}}
}

// do sends body as JSON with as in the caller header and decodes the reply
// into out when given.
func (a *api) do(method, path string, as *common.Address, body any, out any) int {
	a.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set(middleware.HeaderAddress, as.Hex())
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type errorBody struct {
	Error string `json:"error"`
	Code  uint32 `json:"code"`
	Kind  string `json:"kind"`
}

func TestHealthAndStatus(t *testing.T) {
	a := newAPI(t, insecure(), nil)

	var health map[string]any
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/health", nil, nil, &health))
	assert.Equal(t, "ok", health["status"])

	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/ready", nil, nil, nil))

	var status map[string]any
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/status", nil, nil, &status))
	assert.Equal(t, "memory", status["storage"])
}

func TestStoreEndpoints(t *testing.T) {
	a := newAPI(t, insecure(), nil)

	var st struct {
		Address common.Address `json:"address"`
		Admin   common.Address `json:"admin"`
		Name    string         `json:"name"`
	}
	code := a.do(http.MethodPost, "/api/stores", &admin, map[string]string{"name": "shop", "description": "editions"}, &st)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, admin, st.Admin)
	assert.Equal(t, "shop", st.Name)

	var got struct {
		Name string `json:"name"`
	}
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/stores/"+st.Address.Hex(), nil, nil, &got))
	assert.Equal(t, "shop", got.Name)

	var e errorBody
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/stores/"+common.HexToAddress("0xdead").Hex(), nil, nil, &e))
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/api/stores/not-an-address", nil, nil, nil))

	// Mutations need a caller.
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodPost, "/api/stores", nil, map[string]string{"name": "x"}, nil))

	long := string(bytes.Repeat([]byte("n"), domain.DefaultNameMaxLen+1))
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/stores", &admin, map[string]string{"name": long}, &e))
	assert.Equal(t, domain.Code(domain.ErrNameIsTooLong), e.Code)

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/stores", &admin, map[string]any{"bogus": 1}, nil))
}

func TestSaleFlow(t *testing.T) {
	a := newAPI(t, insecure(), nil)
	native := domain.NativeMint

	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/accounts/deposit", &admin,
		map[string]any{"mint": native, "amount": service.DefaultMinimumNativeBalance}, nil))
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/accounts/deposit", &buyer,
		map[string]any{"mint": native, "amount": 5_000}, nil))

	var res struct {
		Mint         common.Address `json:"mint"`
		TokenAccount common.Address `json:"token_account"`
	}
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/resources", &admin, map[string]any{
		"name":                    "edition",
		"uri":                     "https://example.invalid/e.json",
		"seller_fee_basis_points": 500,
		"max_supply":              10,
	}, &res))

	var st struct {
		Address common.Address `json:"address"`
	}
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/stores", &admin, map[string]string{"name": "shop"}, &st))

	_, vaultBump := a.derive.VaultOwner(res.Mint, st.Address)
	var sr struct {
		Address common.Address `json:"address"`
		State   string         `json:"state"`
	}
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/selling-resources", &admin, map[string]any{
		"store":            st.Address,
		"resource":         res.Mint,
		"resource_token":   res.TokenAccount,
		"vault_owner_bump": vaultBump,
		"max_supply":       10,
	}, &sr))
	assert.Equal(t, string(domain.SellingResourceCreated), sr.State)

	_, treasuryBump := a.derive.TreasuryOwner(native, sr.Address)
	var m struct {
		Address common.Address `json:"address"`
		Name    string         `json:"name"`
		State   string         `json:"state"`
		Price   uint64         `json:"price"`
	}
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/markets", &admin, map[string]any{
		"selling_resource":    sr.Address,
		"treasury_mint":       native,
		"treasury_owner_bump": treasuryBump,
		"name":                "drop",
		"mutable":             true,
		"price":               1_000,
		"start_date":          start,
	}, &m))
	assert.Equal(t, "drop", m.Name)
	assert.Equal(t, string(domain.MarketStateActive), m.State)

	_, histBump := a.derive.TradeHistory(buyer, m.Address)
	var p struct {
		EditionNumber uint64 `json:"edition_number"`
		Price         uint64 `json:"price"`
		Supply        uint64 `json:"supply"`
	}
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/markets/"+m.Address.Hex()+"/buy", &buyer, map[string]any{
		"payment_account":    a.derive.Associated(buyer, native),
		"trade_history_bump": histBump,
		"vault_owner_bump":   vaultBump,
	}, &p))
	assert.Equal(t, uint64(1), p.Supply)
	assert.Equal(t, uint64(1_000), p.Price)

	var th struct {
		AlreadyBought uint64 `json:"already_bought"`
	}
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/markets/"+m.Address.Hex()+"/trade-history/"+buyer.Hex(), nil, nil, &th))
	assert.Equal(t, uint64(1), th.AlreadyBought)

	var acc struct {
		Amount uint64 `json:"amount"`
	}
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/accounts/"+a.derive.Associated(buyer, native).Hex(), nil, nil, &acc))
	assert.Equal(t, uint64(4_000), acc.Amount)

	// A started market can no longer be edited.
	var e errorBody
	assert.Equal(t, http.StatusConflict, a.do(http.MethodPatch, "/api/markets/"+m.Address.Hex(), &admin, map[string]any{"price": 5}, &e))
	assert.Equal(t, domain.Code(domain.ErrMarketIsStarted), e.Code)
	assert.Equal(t, string(domain.KindState), e.Kind)

	// Only the owner may close it.
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, "/api/markets/"+m.Address.Hex()+"/close", &buyer, nil, &e))

	var closed struct {
		State string `json:"state"`
	}
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/markets/"+m.Address.Hex()+"/close", &admin, nil, &closed))
	assert.Equal(t, string(domain.MarketStateEnded), closed.State)

	var list struct {
		Markets []struct {
			Address common.Address `json:"address"`
		} `json:"markets"`
	}
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/stores/"+st.Address.Hex()+"/markets", nil, nil, &list))
	require.Len(t, list.Markets, 1)
	assert.Equal(t, m.Address, list.Markets[0].Address)

	var tickets struct {
		Tickets []json.RawMessage `json:"tickets"`
	}
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/markets/"+m.Address.Hex()+"/payouts", nil, nil, &tickets))
	assert.Empty(t, tickets.Tickets)

	// Buying from a closed market is a state conflict.
	assert.Equal(t, http.StatusConflict, a.do(http.MethodPost, "/api/markets/"+m.Address.Hex()+"/buy", &buyer, map[string]any{
		"payment_account":    a.derive.Associated(buyer, native),
		"trade_history_bump": histBump,
		"vault_owner_bump":   vaultBump,
	}, &e))
	assert.Equal(t, domain.Code(domain.ErrMarketIsEnded), e.Code)
}

func TestDerive(t *testing.T) {
	a := newAPI(t, insecure(), nil)
	market, funder := common.HexToAddress("0x01"), common.HexToAddress("0x02")

	var got struct {
		Address common.Address `json:"address"`
		Bump    uint8          `json:"bump"`
	}
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/derive", nil, map[string]any{
		"tag":   crypto.TagPayoutTicket,
		"seeds": []string{market.Hex(), funder.Hex()},
	}, &got))
	want, bump := a.derive.PayoutTicket(market, funder)
	assert.Equal(t, want, got.Address)
	assert.Equal(t, bump, got.Bump)

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/derive", nil, map[string]any{"tag": "x", "seeds": []string{"zz"}}, nil))
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/derive", nil, map[string]any{"seeds": []string{}}, nil))
}

func TestSignedRequests(t *testing.T) {
	cfg := server.Config{Auth: middleware.AuthConfig{Domain: crypto.DefaultDomain, Now: func() time.Time { return start }}}
	a := newAPI(t, cfg, nil)

	signer, err := crypto.NewSigner("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318", crypto.DefaultDomain)
	require.NoError(t, err)

	send := func(ts int64, body []byte, sig string) int {
		req, err := http.NewRequest(http.MethodPost, a.srv.URL+"/api/stores", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set(middleware.HeaderAddress, signer.Address().Hex())
		req.Header.Set(middleware.HeaderTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(middleware.HeaderSignature, sig)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	body := []byte(`{"name":"signed"}`)
	ts := start.Unix()
	sig, err := signer.SignRequest(crypto.SignedRequest{Timestamp: ts, Method: http.MethodPost, Path: "/api/stores", Body: body})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, send(ts, body, sig))
	// Tampered body.
	assert.Equal(t, http.StatusUnauthorized, send(ts, []byte(`{"name":"other"}`), sig))
	// Stale timestamp.
	old := start.Add(-time.Hour).Unix()
	oldSig, err := signer.SignRequest(crypto.SignedRequest{Timestamp: old, Method: http.MethodPost, Path: "/api/stores", Body: body})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, send(old, body, oldSig))
	// Header alone is not enough when signatures are required.
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodPost, "/api/stores", &admin, map[string]string{"name": "x"}, nil))
}

func TestRateLimit(t *testing.T) {
	cfg := insecure()
	cfg.RateLimit = 2
	cfg.RateWindow = time.Hour
	a := newAPI(t, cfg, middleware.NewLocalLimiter())

	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/health", nil, nil, nil))
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/health", nil, nil, nil))
	var e errorBody
	assert.Equal(t, http.StatusTooManyRequests, a.do(http.MethodGet, "/api/health", nil, nil, &e))
	assert.Equal(t, domain.ErrRateLimited.Error(), e.Error)
}

func TestMetricsEndpoint(t *testing.T) {
	a := newAPI(t, insecure(), nil)
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/stores", &admin, map[string]string{"name": "shop"}, nil))

	resp, err := http.Get(a.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "editionshop_")
}

func TestReadyReportsFailingDependency(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := handler.NewHealthHandler(map[string]handler.Pinger{
		"postgres": handler.PingFunc(func(context.Context) error { return nil }),
		"redis":    handler.PingFunc(func(context.Context) error { return assert.AnError }),
	}, logger)

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/api/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Checks["postgres"])
	assert.NotEqual(t, "ok", body.Checks["redis"])
}
