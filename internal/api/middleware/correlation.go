package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/domain"
)

// HeaderCorrelationID carries the id that ties a request to the events it emits.
const HeaderCorrelationID = "X-Correlation-ID"

// CorrelationID takes the caller's X-Correlation-ID, falls back to the echo
// request id and then to a fresh uuid. The id is echoed back and stored in
// the request context for the publisher. Register after RequestID.
func CorrelationID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(HeaderCorrelationID)
			if id == "" {
				id = c.Response().Header().Get(echo.HeaderXRequestID)
			}
			if id == "" {
				id = uuid.NewString()
			}

			c.Response().Header().Set(HeaderCorrelationID, id)
			c.SetRequest(req.WithContext(domain.WithCorrelationID(req.Context(), id)))
			return next(c)
		}
	}
}
