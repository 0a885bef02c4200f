package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/renandw/anesthesiaReports-sub000/internal/platform/auth"
)

// maxStack bounds the stack trace attached to a panic log line.
const maxStack = 8 << 10

// Recovery turns a handler panic into a 500 and logs it with the request id,
// the caller and, on workflow routes, the run id. http.ErrAbortHandler is
// re-raised so net/http can abort the response.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if e, ok := r.(error); ok && errors.Is(e, http.ErrAbortHandler) {
					panic(r)
				}
				stack := debug.Stack()
				if len(stack) > maxStack {
					stack = stack[:maxStack]
				}

				rid, _ := c.Get("request_id").(string)
				if rid == "" {
					rid = c.Response().Header().Get(RequestIDHeader)
				}
				evt := logger.Error().
					Str("request_id", rid).
					Str("user_id", auth.UserIDFromContext(c.Request().Context())).
					Str("method", c.Request().Method).
					Str("path", c.Path())
				if strings.Contains(c.Path(), "/workflows/:id") {
					evt = evt.Str("run_id", c.Param("id"))
				}
				evt.Str("panic", fmt.Sprint(r)).
					Bytes("stack", stack).
					Msg("panic recovered")

				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}
