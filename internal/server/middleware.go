package server

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

const secretHeader = "X-Digest-Secret"

// sharedSecret rejects requests that do not carry the configured secret.
// Comparison is constant-time.
func sharedSecret(secret string) echo.MiddlewareFunc {
	secretBytes := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			provided := []byte(c.Request().Header.Get(secretHeader))
			if len(provided) == 0 {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing "+secretHeader+" header")
			}
			if subtle.ConstantTimeCompare(provided, secretBytes) != 1 {
				return echo.NewHTTPError(http.StatusForbidden, "invalid secret")
			}
			return next(c)
		}
	}
}
