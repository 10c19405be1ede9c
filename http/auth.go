package http

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"ticketing/entity"
)

const userIDHeader = "X-User-ID"

const actorKey = "actor"

// authenticate resolves the caller from the X-User-ID header set by the API gateway.
func (s Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := c.Request().Header.Get(userIDHeader)
		if userID == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing "+userIDHeader+" header")
		}

		if _, err := uuid.Parse(userID); err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid "+userIDHeader+" header")
		}

		user, err := s.users.GetUser(c.Request().Context(), userID)
		if entity.KindOf(err) == entity.KindNotFound {
			return echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
		}
		if err != nil {
			return err
		}

		c.Set(actorKey, entity.Actor{User: user})

		return next(c)
	}
}

func actorFrom(c echo.Context) entity.Actor {
	actor, _ := c.Get(actorKey).(entity.Actor)
	return actor
}
