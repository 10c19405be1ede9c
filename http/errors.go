package http

import (
	"net/http"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/labstack/echo/v4"

	"ticketing/entity"
)

func statusFor(kind entity.ErrorKind) int {
	switch kind {
	case entity.KindInvalidArgument:
		return http.StatusBadRequest
	case entity.KindNotFound:
		return http.StatusNotFound
	case entity.KindFailedPrecondition:
		return http.StatusPreconditionFailed
	case entity.KindConflict:
		return http.StatusConflict
	case entity.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// handleError turns domain errors into HTTP errors. Internal errors are logged
// and returned without details.
func handleError(c echo.Context, err error) error {
	kind := entity.KindOf(err)
	if kind == entity.KindInternal {
		log.FromContext(c.Request().Context()).WithError(err).Error("Request failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return echo.NewHTTPError(statusFor(kind), entity.MessageOf(err))
}
