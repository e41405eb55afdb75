package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ContextRequestID is the context key for the request correlation ID.
const ContextRequestID = "request_id"

// RequestID tags every request with a correlation ID. A caller-supplied
// X-Request-Id is honored so IDs survive hops between services; otherwise a
// fresh uuid is minted. The ID is echoed back in the response header and the
// request logger picks it up from there.
func RequestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(echo.HeaderXRequestID)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(ContextRequestID, id)
		c.Response().Header().Set(echo.HeaderXRequestID, id)
		return next(c)
	}
}
