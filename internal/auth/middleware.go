package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Authenticator guards API routes with bearer JWTs. With an empty secret
// every request is let through.
type Authenticator struct {
	secret  string
	revoked *Revocations
}

// New returns an authenticator; revoked may be nil to skip the deny list.
func New(secret string, revoked *Revocations) *Authenticator {
	return &Authenticator{secret: secret, revoked: revoked}
}

func (a *Authenticator) Enabled() bool { return a.secret != "" }

func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.Next()
			return
		}
		authHeader := c.GetHeader("Authorization")
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if authHeader == "" || tokenStr == authHeader {
			// Browsers cannot set headers on WebSocket upgrades.
			tokenStr = c.Query("token")
		}
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Missing or invalid Authorization header"}})
			return
		}
		claims, err := ParseJWT(a.secret, tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Invalid or expired token"}})
			return
		}
		if a.revoked != nil {
			revoked, err := a.revoked.IsRevoked(c.Request.Context(), claims.ID)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{"message": "Session store unavailable"}})
				return
			}
			if revoked {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Token revoked"}})
				return
			}
		}
		c.Set("claims", claims)
		c.Set("subject", claims.Subject)
		c.Next()
	}
}

// RequireScope rejects authenticated requests whose token lacks scope.
func (a *Authenticator) RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.Next()
			return
		}
		v, _ := c.Get("claims")
		claims, ok := v.(*Claims)
		if !ok || claims.Scope != scope {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": gin.H{"message": "Insufficient scope"}})
			return
		}
		c.Next()
	}
}

// ClaimsFrom returns the verified claims of the request, if any.
func ClaimsFrom(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get("claims")
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}
