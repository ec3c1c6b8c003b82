package middleware

import (
	"net/http"
	"slices"

	"github.com/OFFIS-RIT/leech/pkg/logger"

	"github.com/labstack/echo/v4"
)

const RoleAdmin = "admin"

const (
	PermissionSubmitExtraction = "extraction.submit"
	PermissionIngestSource     = "source.ingest"
	PermissionReadSensitive    = "sensitive.read"
)

var allPermissions = []string{
	PermissionSubmitExtraction,
	PermissionIngestSource,
	PermissionReadSensitive,
}

// HasPermission reports whether user may use permission. Admins hold every
// permission, including ones their token does not list.
func HasPermission(user *AppUser, permission string) bool {
	if user == nil {
		return false
	}
	if user.Role == RoleAdmin {
		return true
	}
	return slices.Contains(user.Permissions, permission)
}

func RequirePermission(permission string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := c.(*AppContext).User
			if user == nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}

			if !HasPermission(user, permission) {
				logger.Warn("[Auth] Permission denied", "user", user.UserID, "permission", permission, "path", c.Path())
				return c.JSON(http.StatusForbidden, map[string]string{"error": "Forbidden: missing permission " + permission})
			}

			return next(c)
		}
	}
}
