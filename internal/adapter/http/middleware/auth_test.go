package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/iho/walletledger/internal/domain"
)

type verifierFunc func(token string) (domain.Principal, error)

func (f verifierFunc) Verify(token string) (domain.Principal, error) { return f(token) }

func staticVerifier(tokens map[string]domain.Principal) TokenVerifier {
	return verifierFunc(func(token string) (domain.Principal, error) {
		if token == "expired" {
			return domain.Principal{}, domain.ErrExpiredToken
		}
		p, ok := tokens[token]
		if !ok {
			return domain.Principal{}, domain.ErrInvalidToken
		}
		return p, nil
	})
}

func TestAuthenticate(t *testing.T) {
	verifier := staticVerifier(map[string]domain.Principal{
		"good": {Subject: "svc-1", Role: domain.RoleOperator},
	})

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic Zm9v", wantStatus: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer ", wantStatus: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "expired token", header: "Bearer expired", wantStatus: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer good", wantStatus: http.StatusOK},
		{name: "case-insensitive scheme", header: "bearer good", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got domain.Principal
			handler := Authenticate(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = PrincipalFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/wallets/w1", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rr.Code)
			}
			if tt.wantStatus == http.StatusOK && got.Subject != "svc-1" {
				t.Fatalf("expected principal in context, got %+v", got)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name       string
		principal  *domain.Principal
		minRole    domain.Role
		wantStatus int
	}{
		{name: "no principal", minRole: domain.RoleViewer, wantStatus: http.StatusUnauthorized},
		{name: "viewer reads", principal: &domain.Principal{Subject: "v", Role: domain.RoleViewer}, minRole: domain.RoleViewer, wantStatus: http.StatusOK},
		{name: "viewer cannot mutate", principal: &domain.Principal{Subject: "v", Role: domain.RoleViewer}, minRole: domain.RoleOperator, wantStatus: http.StatusForbidden},
		{name: "operator mutates", principal: &domain.Principal{Subject: "o", Role: domain.RoleOperator}, minRole: domain.RoleOperator, wantStatus: http.StatusOK},
		{name: "operator cannot reconcile", principal: &domain.Principal{Subject: "o", Role: domain.RoleOperator}, minRole: domain.RoleAdmin, wantStatus: http.StatusForbidden},
		{name: "admin reconciles", principal: &domain.Principal{Subject: "a", Role: domain.RoleAdmin}, minRole: domain.RoleAdmin, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireRole(tt.minRole)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/wallets", nil)
			if tt.principal != nil {
				req = req.WithContext(WithPrincipal(req.Context(), *tt.principal))
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rr.Code)
			}
		})
	}
}
