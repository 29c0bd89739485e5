// README: Bearer-token middleware tests.
package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"gocab/internal/auth"
	"gocab/internal/http/middleware"
)

func newTestRouter(t *testing.T) (*gin.Engine, *auth.Tokens) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tokens, err := auth.NewTokens("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	r := gin.New()
	r.GET("/me", middleware.Auth(tokens), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": middleware.CallerID(c), "role": middleware.CallerRole(c)})
	})
	r.GET("/driver-only", middleware.Auth(tokens), middleware.RequireRole(auth.RoleDriver), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r, tokens
}

func TestAuthMissingHeader(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestAuthGarbageToken(t *testing.T) {
	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestAuthValidToken(t *testing.T) {
	r, tokens := newTestRouter(t)
	token, err := tokens.Generate("rider-1", auth.RoleRider)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
}

func TestRequireRoleRejectsRider(t *testing.T) {
	r, tokens := newTestRouter(t)
	token, _ := tokens.Generate("rider-1", auth.RoleRider)
	req := httptest.NewRequest(http.MethodGet, "/driver-only", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}
