// Package middleware holds the echo middleware shared by every route group:
// request IDs, request logging, panic recovery, and request timeouts.
package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDHeader is the header carrying the request correlation ID.
const RequestIDHeader = "X-Request-ID"

// requestIDContextKey is the echo context key the correlation ID is stored
// under; Logger and Recovery read it back when emitting.
const requestIDContextKey = "request_id"

// requestIDFrom returns the correlation ID stored on the context, or "".
func requestIDFrom(c echo.Context) string {
	rid, _ := c.Get(requestIDContextKey).(string)
	return rid
}

// RequestID assigns each request a correlation ID. An incoming X-Request-ID
// is honored so callers can trace requests across services; otherwise a new
// UUID is generated. The ID is stored on the context under "request_id" and
// echoed back in the response header.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(RequestIDHeader)
			if rid == "" {
				rid = uuid.New().String()
			}
			c.Set(requestIDContextKey, rid)
			c.Response().Header().Set(RequestIDHeader, rid)
			return next(c)
		}
	}
}
