package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// actorKey is the gin context key under which RequireAuth stores the
// authenticated actor.
const actorKey = "civicledger.actor"

// Actor is the authenticated principal extracted from a bearer token. Its
// role is snapshotted into each audit entry at append time.
type Actor struct {
	ID   string
	Role string
}

// ActorClaims are the JWT claims auditd accepts: the subject identifies the
// actor, role carries the application role label.
type ActorClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// RequireAuth returns a middleware that verifies an HS256 bearer token and
// stores the resulting Actor in the request context. Token issuance is the
// surrounding application's concern; auditd only consumes its claims.
func RequireAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(raw, "Bearer ")
		if !found || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims := &ActorClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return secret, nil
		}, jwt.WithExpirationRequired())
		if err != nil || !parsed.Valid || claims.Subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(actorKey, Actor{ID: claims.Subject, Role: claims.Role})
		c.Next()
	}
}

// RequireRole returns a middleware that rejects actors whose role is not
// role. It must run after RequireAuth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok || actor.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}
		c.Next()
	}
}

// ActorFromContext returns the actor stored by RequireAuth.
func ActorFromContext(c *gin.Context) (Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return Actor{}, false
	}
	actor, ok := v.(Actor)
	return actor, ok
}

// IssueActorToken signs a short-lived HS256 token for the given actor. Used
// by ledgerctl and by tests; the production application issues its own.
func IssueActorToken(secret []byte, actorID, role string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := ActorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign actor token: %w", err)
	}
	return signed, nil
}
