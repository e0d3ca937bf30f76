package handler

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fpbe/auth-engine/internal/kv"
	"github.com/fpbe/auth-engine/internal/service"
)

func newTestTokenService(t *testing.T) *service.TokenService {
	t.Helper()
	store := kv.NewMemory(nil)
	keys, err := service.NewKeyManager(service.KeyManagerConfig{
		Store:            store,
		RotationInterval: 24 * time.Hour,
		GracePeriod:      time.Hour,
		Generate: func() (*rsa.PrivateKey, error) {
			return rsa.GenerateKey(rand.Reader, 1024)
		},
	})
	if err != nil {
		t.Fatalf("NewKeyManager: %v", err)
	}
	return service.NewTokenService(service.TokenServiceConfig{
		Keys:        keys,
		Revocations: service.NewRevocationStore(store, 2*time.Second, false),
		AccessTTL:   15 * time.Minute,
		RefreshTTL:  7 * 24 * time.Hour,
	})
}

func newProtectedRouter(tokens *service.TokenService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", AuthMiddleware(tokens), func(c *gin.Context) {
		claims := GetSessionClaims(c)
		if claims == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "no claims"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"subject": claims.Subject})
	})
	return router
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	tokens := newTestTokenService(t)
	router := newProtectedRouter(tokens)

	pair, err := tokens.Issue(t.Context(), "alice", "device-1", "fp")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	req.Header.Set("X-Device-ID", "device-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAuthMiddlewareRejectsMissingHeader(t *testing.T) {
	router := newProtectedRouter(newTestTokenService(t))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddlewareRejectsMissingDeviceHeader(t *testing.T) {
	tokens := newTestTokenService(t)
	router := newProtectedRouter(tokens)

	pair, err := tokens.Issue(t.Context(), "alice", "device-1", "fp")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a device header, got %d", rec.Code)
	}
}

func TestAuthMiddlewareRejectsWrongDevice(t *testing.T) {
	tokens := newTestTokenService(t)
	router := newProtectedRouter(tokens)

	pair, err := tokens.Issue(t.Context(), "alice", "device-1", "fp")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	req.Header.Set("X-Device-ID", "device-2")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a foreign device, got %d", rec.Code)
	}
}

func TestAuthMiddlewareRejectsRefreshToken(t *testing.T) {
	tokens := newTestTokenService(t)
	router := newProtectedRouter(tokens)

	pair, err := tokens.Issue(t.Context(), "alice", "device-1", "fp")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	req.Header.Set("X-Device-ID", "device-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a refresh token on an access route, got %d", rec.Code)
	}
}
