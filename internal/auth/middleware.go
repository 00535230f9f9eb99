package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"classattend/internal/apperr"
	"classattend/internal/attendance"
)

const identityKey = "identity"

// AccountAuth enforces bearer JWT tokens signed with HS256 and stores the
// caller identity on the context.
func AccountAuth(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			abort(c, apperr.Unauthorized.WithMessage("missing bearer token"))
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			abort(c, apperr.Unauthorized.WithMessage("invalid token"))
			return
		}
		c.Set(identityKey, claims.Identity())
		c.Next()
	}
}

// IdentityFrom returns the identity set by AccountAuth.
func IdentityFrom(c *gin.Context) (attendance.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return attendance.Identity{}, false
	}
	who, ok := v.(attendance.Identity)
	return who, ok && who.AccountID != ""
}

func abort(c *gin.Context, d apperr.Definition) {
	c.AbortWithStatusJSON(d.Status, gin.H{"code": d.Code, "error": d.Message})
}
