package middleware

import (
	"context"
	"net/http"
	"strings"

	"convo-server/internal/auth"
	"convo-server/internal/model"
	"convo-server/internal/store"
	"github.com/gin-gonic/gin"
)

const currentUserContextKey = "currentUser"

// Policy is the per-operation auth attribute, fixed at route registration.
type Policy int

const (
	RequiresAuth Policy = iota
	Exempt
)

// Resolver turns a bearer credential into a user record. Every failure mode
// (missing header, bad signature, expired token, unknown subject) collapses
// to absent so callers cannot tell why resolution failed.
type Resolver struct {
	Store       store.Store
	TokenConfig auth.TokenConfig
}

func (r *Resolver) Resolve(ctx context.Context, credential string) (*model.User, bool) {
	token := strings.TrimSpace(credential)
	if after, found := strings.CutPrefix(token, "Bearer "); found {
		token = after
	}
	if token == "" {
		return nil, false
	}

	claims, err := auth.VerifyToken(token, r.TokenConfig)
	if err != nil {
		return nil, false
	}

	user, err := r.Store.GetUserByEmail(ctx, claims.Subject)
	if err != nil {
		return nil, false
	}
	return &user, true
}

func CurrentUser(c *gin.Context) (*model.User, bool) {
	value, ok := c.Get(currentUserContextKey)
	if !ok {
		return nil, false
	}
	user, ok := value.(*model.User)
	return user, ok && user != nil
}

// Authenticate is the gate in front of every operation: deny unless the
// route was registered Exempt. Exempt routes still get the identity attached
// when one resolves.
func Authenticate(resolver *Resolver, policy Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := resolver.Resolve(c.Request.Context(), c.GetHeader("Authorization"))
		if ok {
			c.Set(currentUserContextKey, user)
		}

		if policy == RequiresAuth && !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			c.Abort()
			return
		}
		c.Next()
	}
}
