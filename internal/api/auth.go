package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/datallboy/blobsync/internal/api/controllers"
	"github.com/datallboy/blobsync/internal/blob"
)

// SharedKeyAuth rejects requests whose Authorization header does not match
// the signature computed with the account key.
func SharedKeyAuth(verifier *blob.SharedKeySigner) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			req := c.Request()
			got := req.Header.Get("Authorization")
			want := verifier.Authorization(req)

			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
				c.Response().Header().Set("x-ms-error-code", controllers.CodeAuthenticationFailed)
				return c.XML(http.StatusForbidden, controllers.ErrorResponse{
					Code:    controllers.CodeAuthenticationFailed,
					Message: "Server failed to authenticate the request.",
				})
			}
			return next(c)
		}
	}
}
