package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// AdminAuth guards the operator endpoints with a static bearer token.
// When no token is configured the guard is disabled, which keeps local
// development friction-free; production deployments always set one.
func AdminAuth(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				return next(c)
			}
			header := c.Request().Header.Get("Authorization")
			presented := strings.TrimPrefix(header, "Bearer ")
			if presented == header || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			return next(c)
		}
	}
}
