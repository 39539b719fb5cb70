package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/walletledger/internal/adapter/http/dto"
	"github.com/iho/walletledger/internal/adapter/http/handler"
	apimiddleware "github.com/iho/walletledger/internal/adapter/http/middleware"
	"github.com/iho/walletledger/internal/adapter/repository/memory"
	redisadapter "github.com/iho/walletledger/internal/adapter/repository/redis"
	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/infrastructure/auth"
	"github.com/iho/walletledger/internal/usecase"
	"github.com/iho/walletledger/internal/usecase/mocks"
)

func TestNewRouter_HealthEndpointAvailable(t *testing.T) {
	router := NewRouter(newRouterConfig())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected /health to return 200, got %d", rec.Code)
	}
}

func TestNewRouter_RateLimiterBlocksExcessRequests(t *testing.T) {
	rl := apimiddleware.NewRateLimiter(1, 1)
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.RateLimiter = rl
	}))

	req1 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req1.RemoteAddr = "1.2.3.4:1234"
	rec1 := httptest.NewRecorder()
	router.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req2.RemoteAddr = "1.2.3.4:1234"
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", rec2.Code)
	}
}

func TestNewRouter_RegistersKeyRoutes(t *testing.T) {
	router := NewRouter(newRouterConfig())

	chiRoutes, ok := router.(chi.Router)
	if !ok {
		t.Fatal("router does not implement chi.Routes")
	}

	seen := map[string]bool{}
	if err := chi.Walk(chiRoutes, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		seen[method+" "+route] = true
		return nil
	}); err != nil {
		t.Fatalf("walk failed: %v", err)
	}

	expected := []string{
		"GET /health",
		"GET /ready",
		"POST /api/v1/wallets/",
		"GET /api/v1/wallets/",
		"GET /api/v1/wallets/{id}",
		"GET /api/v1/wallets/owner/{ownerID}",
		"GET /api/v1/wallets/{id}/history",
		"GET /api/v1/wallets/{id}/events",
		"POST /api/v1/wallets/{id}/deposit",
		"POST /api/v1/wallets/{id}/withdraw",
		"POST /api/v1/transfers",
		"GET /api/v1/reconciliation/report",
		"GET /api/v1/reconciliation/wallets/{id}",
		"POST /api/v1/reconciliation/wallets/{id}/rebuild",
	}

	for _, route := range expected {
		if !seen[route] {
			t.Fatalf("expected route %s to be registered", route)
		}
	}
}

// apiClient drives the router with JSON requests.
type apiClient struct {
	t      *testing.T
	router http.Handler
	token  string
}

func (c *apiClient) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)
	return rec
}

func TestNewRouter_WalletLifecycle(t *testing.T) {
	router := NewRouter(newRouterConfig())
	c := &apiClient{t: t, router: router}

	rec := c.do(http.MethodPost, "/api/v1/wallets", `{"owner_id":"alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var alice dto.WalletResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alice))

	rec = c.do(http.MethodPost, "/api/v1/wallets", `{"owner_id":"bob"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var bob dto.WalletResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bob))

	rec = c.do(http.MethodPost, "/api/v1/wallets", `{"owner_id":"alice"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "second wallet for an owner")

	rec = c.do(http.MethodPost, "/api/v1/wallets/"+alice.ID+"/deposit", `{"amount":"100.00"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.do(http.MethodPost, "/api/v1/wallets/"+alice.ID+"/withdraw", `{"amount":"500"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = c.do(http.MethodPost, "/api/v1/wallets/"+alice.ID+"/withdraw", `{"amount":"-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.do(http.MethodPost, "/api/v1/transfers",
		`{"from_wallet_id":"`+alice.ID+`","to_wallet_id":"`+bob.ID+`","amount":"40"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = c.do(http.MethodGet, "/api/v1/wallets/"+bob.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var bobNow dto.WalletResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bobNow))
	assert.Equal(t, "40", bobNow.Balance.String())

	rec = c.do(http.MethodGet, "/api/v1/wallets/owner/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var aliceNow dto.WalletResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &aliceNow))
	assert.Equal(t, "60", aliceNow.Balance.String())
	assert.Equal(t, int64(3), aliceNow.Version)

	rec = c.do(http.MethodGet, "/api/v1/wallets/"+alice.ID+"/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history dto.HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Len(t, history.Events, 3)

	rec = c.do(http.MethodGet, "/api/v1/wallets/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = c.do(http.MethodGet, "/api/v1/reconciliation/wallets/"+alice.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var result dto.ReconciliationResultResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.IsReconciled)
}

func TestNewRouter_RoleEnforcement(t *testing.T) {
	jwt := auth.NewJWTManager("router-test-secret", time.Hour)
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.TokenVerifier = jwt
	}))

	mint := func(role domain.Role) string {
		token, err := jwt.Generate(domain.Principal{Subject: "svc-" + string(role), Role: role})
		require.NoError(t, err)
		return token
	}

	tests := []struct {
		name   string
		token  string
		method string
		path   string
		body   string
		status int
	}{
		{name: "anonymous read", method: http.MethodGet, path: "/api/v1/wallets/", status: http.StatusUnauthorized},
		{name: "viewer read", token: mint(domain.RoleViewer), method: http.MethodGet, path: "/api/v1/wallets/", status: http.StatusOK},
		{name: "viewer create", token: mint(domain.RoleViewer), method: http.MethodPost, path: "/api/v1/wallets", body: `{"owner_id":"x"}`, status: http.StatusForbidden},
		{name: "operator create", token: mint(domain.RoleOperator), method: http.MethodPost, path: "/api/v1/wallets", body: `{"owner_id":"x"}`, status: http.StatusCreated},
		{name: "operator report", token: mint(domain.RoleOperator), method: http.MethodGet, path: "/api/v1/reconciliation/report", status: http.StatusForbidden},
		{name: "admin report", token: mint(domain.RoleAdmin), method: http.MethodGet, path: "/api/v1/reconciliation/report", status: http.StatusOK},
		{name: "health stays public", method: http.MethodGet, path: "/health", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &apiClient{t: t, router: router, token: tt.token}
			rec := c.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestNewRouter_IdempotentDepositAppliesOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.IdempotencyStore = redisadapter.NewIdempotencyStore(client)
	}))
	c := &apiClient{t: t, router: router}

	rec := c.do(http.MethodPost, "/api/v1/wallets", `{"owner_id":"carol"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var w dto.WalletResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &w))

	path := "/api/v1/wallets/" + w.ID + "/deposit"
	first := c.do(http.MethodPost, path, `{"amount":"10"}`, apimiddleware.IdempotencyKeyHeader, "dep-1")
	second := c.do(http.MethodPost, path, `{"amount":"10"}`, apimiddleware.IdempotencyKeyHeader, "dep-1")

	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get(apimiddleware.IdempotencyReplayHeader))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	rec = c.do(http.MethodGet, "/api/v1/wallets/"+w.ID, "")
	var after dto.WalletResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &after))
	assert.Equal(t, "10", after.Balance.String())
	assert.Equal(t, int64(2), after.Version)
}

func newRouterConfig(opts ...func(*RouterConfig)) RouterConfig {
	store := memory.NewStore()
	clock := mocks.NewStepClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), time.Millisecond)
	repo := usecase.NewWalletRepository(store, store, store, clock,
		usecase.WithOutbox(store, mocks.NewSequenceIDGenerator("ob")))

	commands := usecase.NewWalletUseCase(repo, mocks.NewSequenceIDGenerator("w"), mocks.NewSequenceIDGenerator("tx"), nil)
	queries := usecase.NewWalletQueryUseCase(repo)

	cfg := RouterConfig{
		WalletHandler:         handler.NewWalletHandler(commands, queries),
		TransferHandler:       handler.NewTransferHandler(commands),
		ReconciliationHandler: handler.NewReconciliationHandler(usecase.NewReconciliationUseCase(repo, nil)),
		HealthHandler: handler.NewHealthHandler(map[string]handler.HealthCheck{
			"storage": func(context.Context) error { return nil },
		}),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}
