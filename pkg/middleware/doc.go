// Package middleware provides observability middleware for JibbrJabbr hosts.
//
// This package includes:
//   - OpenTelemetry tracing of every handler execution
//   - Prometheus metrics per execution
//   - Logging and timeout helpers
//
// Middleware is installed per host:
//
//	host := srv.Host("chat")
//	host.Use(
//	    middleware.Logging(),
//	    middleware.OpenTelemetry(middleware.WithTracerName("chat")),
//	    middleware.Prometheus(middleware.WithRegistry(reg)),
//	)
//
// # Context Propagation
//
// OpenTelemetry and Timeout replace ctx.StdContext(), so database drivers,
// HTTP clients and client round trips inherit the span and the deadline:
//
//	func handler(ctx *server.Context) error {
//	    row := db.QueryRowContext(ctx.StdContext(), "SELECT ...")
//	    ...
//	}
package middleware
