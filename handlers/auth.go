package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	RoleDevice   = "device"
	RoleOperator = "operator"
	RoleAPI      = "api"

	ctxRoleKey = "relay_role"
)

// Tokens are the shared secrets per role.
type Tokens struct {
	Device string
	User   string
	API    string
}

// RoleFor returns the role a token authenticates, or "" when it matches
// none.
func (t Tokens) RoleFor(token string) string {
	switch {
	case token == "":
		return ""
	case equal(token, t.Device):
		return RoleDevice
	case equal(token, t.User):
		return RoleOperator
	case equal(token, t.API):
		return RoleAPI
	}
	return ""
}

// Allows reports whether token is valid for the declared channel role.
func (t Tokens) Allows(role, token string) bool {
	switch role {
	case RoleDevice:
		return equal(token, t.Device)
	case RoleOperator:
		return equal(token, t.User)
	}
	return false
}

func equal(given, want string) bool {
	if given == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(want)) == 1
}

// ExtractToken reads the bearer token, the X-Device-Token header or the
// token query parameter, in that order.
func ExtractToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if h := c.GetHeader("X-Device-Token"); h != "" {
		return h
	}
	return c.Query("token")
}

// RequireRole rejects requests whose token does not authenticate one of
// roles. The matched role is stored on the context.
func RequireRole(t Tokens, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := t.RoleFor(ExtractToken(c))
		for _, r := range roles {
			if role != "" && role == r {
				c.Set(ctxRoleKey, role)
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}

// NormalizeRole maps the legacy "web" role to operator.
func NormalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleDevice:
		return RoleDevice
	case RoleOperator, "web":
		return RoleOperator
	}
	return ""
}
