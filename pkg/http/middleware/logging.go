package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	xlogger "MarketEngine/pkg/logger"
)

// RequestLogging logs one line per request. Health probes log at debug.
func RequestLogging(l *xlogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := []xlogger.Field{
				xlogger.String("method", req.Method),
				xlogger.String("uri", req.RequestURI),
				xlogger.String("remote", c.RealIP()),
				xlogger.Int("status", c.Response().Status),
				xlogger.Duration("latency", time.Since(start)),
			}
			if c.Path() == "/healthz" {
				l.Debug("http request", fields...)
			} else {
				l.Info("http request", fields...)
			}
			return nil
		}
	}
}
