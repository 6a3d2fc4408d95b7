package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/jibbrjabbr/jj/pkg/server"
)

// Logging creates middleware that logs every execution at debug level and
// failed executions at warn level, on the execution's logger.
func Logging() server.Middleware {
	return server.MiddlewareFunc(func(ctx *server.Context, next func() error) error {
		start := time.Now()
		err := next()

		attrs := []any{"kind", executionKind(ctx), "duration", time.Since(start)}
		if ev := ctx.Event(); ev != nil {
			attrs = append(attrs, "event", ev.Key())
		}
		if err != nil {
			ctx.Logger().Warn("handler error", append(attrs, "error", err)...)
			return err
		}
		ctx.Logger().Log(ctx.StdContext(), slog.LevelDebug, "handler done", attrs...)
		return nil
	})
}

// Timeout creates middleware that bounds each execution, including time
// parked on client replies, by d. A getter still waiting when d elapses
// fails with context.DeadlineExceeded.
func Timeout(d time.Duration) server.Middleware {
	return server.MiddlewareFunc(func(ctx *server.Context, next func() error) error {
		parent := ctx.StdContext()
		std, cancel := context.WithTimeout(parent, d)
		defer cancel()

		ctx.SetStdContext(std)
		defer ctx.SetStdContext(parent)
		return next()
	})
}
