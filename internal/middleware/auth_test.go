package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"convo-server/internal/auth"
	"convo-server/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func testResolver(t *testing.T) (*Resolver, string) {
	t.Helper()
	st := store.NewMemory()
	if _, err := st.CreateUser(context.Background(), "alice", "alice@x.com", "hash", 1); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return &Resolver{Store: st, TokenConfig: auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}}, "alice@x.com"
}

func gateRouter(resolver *Resolver, policy Policy) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", Authenticate(resolver, policy), func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if ok {
			c.JSON(http.StatusOK, gin.H{"email": user.Email})
			return
		}
		c.JSON(http.StatusOK, gin.H{"email": nil})
	})
	return r
}

func TestAuthenticate_ProtectedDeniesWithoutCredential(t *testing.T) {
	resolver, _ := testResolver(t)
	r := gateRouter(resolver, RequiresAuth)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthenticate_ProtectedDeniesGarbageToken(t *testing.T) {
	resolver, _ := testResolver(t)
	r := gateRouter(resolver, RequiresAuth)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthenticate_ProtectedDeniesExpiredToken(t *testing.T) {
	resolver, email := testResolver(t)
	r := gateRouter(resolver, RequiresAuth)

	// An hour-long token presented one second after its expiry.
	claims := jwt.RegisteredClaims{
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-3601 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Second)),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthenticate_ProtectedInjectsCurrentUser(t *testing.T) {
	resolver, email := testResolver(t)
	r := gateRouter(resolver, RequiresAuth)

	tok, err := auth.CreateToken(email, resolver.TokenConfig)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAuthenticate_ExemptPassesWithoutCredential(t *testing.T) {
	resolver, _ := testResolver(t)
	r := gateRouter(resolver, Exempt)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestResolver_UnknownSubjectIsAbsent(t *testing.T) {
	resolver, _ := testResolver(t)

	tok, err := auth.CreateToken("ghost@x.com", resolver.TokenConfig)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	if _, ok := resolver.Resolve(context.Background(), "Bearer "+tok); ok {
		t.Fatalf("expected absent identity for unknown subject")
	}
}
