package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/radiology-portal/internal/middleware"
	"github.com/iliyamo/radiology-portal/internal/repository"
)

// ErrorHandler is the single top-level handler for errors that handlers
// did not map themselves.  echo.HTTPErrors keep their status; storage
// outages become 503; anything else is logged and answered with 500.
// Outside production the 500 body carries the error chain under "stack".
func ErrorHandler(production bool, log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		body := echo.Map{"error": "internal server error"}

		var he *echo.HTTPError
		switch {
		case errors.As(err, &he):
			status = he.Code
			body = echo.Map{"error": fmt.Sprint(he.Message)}
			if he.Message == nil {
				body["error"] = http.StatusText(status)
			}
		case repository.IsUnavailable(err):
			status = http.StatusServiceUnavailable
			body = echo.Map{"error": "storage unavailable"}
		}

		if status >= 500 {
			l := log
			if c.Get("logger") != nil {
				l = middleware.Logger(c)
			}
			l.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("route", c.Path()),
				zap.Int("status", status),
				zap.Error(err))
			if !production && status == http.StatusInternalServerError {
				body["stack"] = fmt.Sprintf("%+v", err)
			}
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			log.Warn("write error response", zap.Error(werr))
		}
	}
}
