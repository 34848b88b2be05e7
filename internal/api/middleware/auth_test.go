package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/solidus-pim/server/internal/auth"
)

func newTestManager(t *testing.T) *auth.JWTManager {
	t.Helper()
	return auth.NewJWTManager("test-secret-for-middleware", time.Hour, "solidus-test")
}

func TestRequireAuth_ValidToken(t *testing.T) {
	manager := newTestManager(t)
	token, err := manager.Generate("01JWUSER00000000000000USER", "alice", "employee")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	var gotActor, gotSubject string
	handler := RequireAuth(manager, "test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor = ActorFromContext(r.Context())
		gotSubject = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	if gotActor != "alice" {
		t.Errorf("expected actor alice, got %q", gotActor)
	}
	if gotSubject != "01JWUSER00000000000000USER" {
		t.Errorf("expected subject from claims, got %q", gotSubject)
	}
}

func TestRequireAuth_MissingHeader(t *testing.T) {
	handler := RequireAuth(newTestManager(t), "test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", res.Code)
	}
	if res.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate header")
	}
	if ct := res.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected problem+json content type, got %q", ct)
	}
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	handler := RequireAuth(newTestManager(t), "test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", res.Code)
	}
}

func TestRequireRole(t *testing.T) {
	manager := newTestManager(t)

	cases := []struct {
		name     string
		role     string
		allowed  []auth.Role
		expected int
	}{
		{"admin allowed on admin route", "admin", []auth.Role{auth.RoleAdmin}, http.StatusOK},
		{"employee rejected on admin route", "employee", []auth.Role{auth.RoleAdmin}, http.StatusForbidden},
		{"employee allowed on staff route", "employee", []auth.Role{auth.RoleAdmin, auth.RoleEmployee}, http.StatusOK},
		{"customer rejected on staff route", "customer", []auth.Role{auth.RoleAdmin, auth.RoleEmployee}, http.StatusForbidden},
		{"unknown role treated as customer", "superuser", []auth.Role{auth.RoleAdmin}, http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token, err := manager.Generate("01JWUSER00000000000000USER", "bob", tc.role)
			if err != nil {
				t.Fatalf("generate token: %v", err)
			}

			chain := RequireAuth(manager, "test")(RequireRole("test", tc.allowed...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			res := httptest.NewRecorder()
			chain.ServeHTTP(res, req)

			if res.Code != tc.expected {
				t.Fatalf("expected status %d, got %d", tc.expected, res.Code)
			}
		})
	}
}

func TestRequireRole_WithoutAuth(t *testing.T) {
	handler := RequireRole("test", auth.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", res.Code)
	}
}

func TestActorFromContext_Anonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if actor := ActorFromContext(req.Context()); actor != "anonymous" {
		t.Errorf("expected anonymous, got %q", actor)
	}
}
