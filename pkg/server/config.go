package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jibbrjabbr/jj/pkg/clientstore"
	"github.com/prometheus/client_golang/prometheus"
)

// ConnectionConfig holds configuration for individual connections.
type ConnectionConfig struct {
	// ReadTimeout is the maximum time to wait for a frame from the client.
	// Default: 60 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending a frame.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// IdleTimeout is the time without client activity after which the
	// tracker closes a connection.
	// Default: 35 seconds.
	IdleTimeout time.Duration

	// HeartbeatInterval is the time between jj-hi probes.
	// Default: 15 seconds.
	HeartbeatInterval time.Duration

	// SuspendTimeout bounds how long a handler may wait for a reply.
	// 0 means wait until the connection closes.
	// Default: 0.
	SuspendTimeout time.Duration

	// MaxMessageSize is the maximum size of an incoming WebSocket message.
	// Default: 64KB.
	MaxMessageSize int64

	// MaxEventQueue is the size of the event channel buffer.
	// Default: 256.
	MaxEventQueue int
}

// DefaultConnectionConfig returns a ConnectionConfig with sensible defaults.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       35 * time.Second,
		HeartbeatInterval: 15 * time.Second,
		MaxMessageSize:    64 * 1024, // 64KB
		MaxEventQueue:     256,
	}
}

// Clone returns a copy of the ConnectionConfig.
func (c *ConnectionConfig) Clone() *ConnectionConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// ServerConfig holds configuration for the HTTP/WebSocket server.
type ServerConfig struct {
	// Address is the address to listen on (e.g., ":8080" or "localhost:3000").
	// Default: ":8080".
	Address string

	// SocketPath is the URL prefix for WebSocket endpoints; clients connect
	// to SocketPath + "/" + host name.
	// Default: "/_jj/socket".
	SocketPath string

	// ReadBufferSize is the WebSocket read buffer size.
	// Default: 4096.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	// Default: 4096.
	WriteBufferSize int

	// CheckOrigin is called to validate the request origin.
	// Default: SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// ConnectionConfig is the configuration for individual connections.
	// Default: DefaultConnectionConfig().
	ConnectionConfig *ConnectionConfig

	// SweepSchedule is the cron schedule of the idle connection sweep.
	// Default: "@every 5s".
	SweepSchedule string

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 30 seconds.
	ShutdownTimeout time.Duration

	// ClientStore persists client storage between connections of the same
	// browser. Nil disables persistence.
	ClientStore clientstore.Store

	// StorageTTL is how long a persisted snapshot outlives its connection.
	// Default: 24 hours.
	StorageTTL time.Duration

	// MetricsPath serves Prometheus metrics when non-empty.
	// Default: "" (disabled).
	MetricsPath string

	// Registerer receives the server metrics. When nil a private registry
	// is created.
	Registerer prometheus.Registerer

	// Gatherer backs MetricsPath. When nil and Registerer is nil the
	// private registry is used; otherwise prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Namespace prefixes metric names.
	// Default: "jj".
	Namespace string

	// Logger is the base logger.
	// Default: slog.Default().
	Logger *slog.Logger
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:          ":8080",
		SocketPath:       "/_jj/socket",
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		CheckOrigin:      SameOriginCheck,
		ConnectionConfig: DefaultConnectionConfig(),
		SweepSchedule:    "@every 5s",
		ShutdownTimeout:  30 * time.Second,
		StorageTTL:       24 * time.Hour,
		Namespace:        "jj",
	}
}

// SameOriginCheck validates that the WebSocket request origin matches the host.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// No Origin header (e.g., same-origin request or curl)
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := r.Host
	if host == "" {
		return false
	}
	return originURL.Host == host
}

// AllowOrigins returns an origin check accepting same-origin requests and
// the listed origins, such as "https://example.com". "*" allows any origin.
func AllowOrigins(origins ...string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimSuffix(o, "/")] = true
	}
	return func(r *http.Request) bool {
		if allowed["*"] || SameOriginCheck(r) {
			return true
		}
		return allowed[r.Header.Get("Origin")]
	}
}

// Clone returns a copy of the ServerConfig.
func (c *ServerConfig) Clone() *ServerConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.ConnectionConfig = c.ConnectionConfig.Clone()
	return &clone
}

// WithAddress returns a copy with the listen address set.
func (c *ServerConfig) WithAddress(addr string) *ServerConfig {
	clone := c.Clone()
	clone.Address = addr
	return clone
}

// WithConnectionConfig returns a copy with the connection configuration set.
func (c *ServerConfig) WithConnectionConfig(cc *ConnectionConfig) *ServerConfig {
	clone := c.Clone()
	clone.ConnectionConfig = cc
	return clone
}

// WithClientStore returns a copy that persists client storage in store.
func (c *ServerConfig) WithClientStore(store clientstore.Store) *ServerConfig {
	clone := c.Clone()
	clone.ClientStore = store
	return clone
}

// WithMetrics returns a copy that serves metrics at path.
func (c *ServerConfig) WithMetrics(path string) *ServerConfig {
	clone := c.Clone()
	clone.MetricsPath = path
	return clone
}

// applyDefaults fills unset fields from DefaultServerConfig.
func (c *ServerConfig) applyDefaults() {
	d := DefaultServerConfig()
	if c.Address == "" {
		c.Address = d.Address
	}
	if c.SocketPath == "" {
		c.SocketPath = d.SocketPath
	}
	c.SocketPath = "/" + strings.Trim(c.SocketPath, "/")
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = d.WriteBufferSize
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = d.CheckOrigin
	}
	if c.ConnectionConfig == nil {
		c.ConnectionConfig = d.ConnectionConfig
	} else {
		cc, dc := c.ConnectionConfig, d.ConnectionConfig
		if cc.ReadTimeout == 0 {
			cc.ReadTimeout = dc.ReadTimeout
		}
		if cc.WriteTimeout == 0 {
			cc.WriteTimeout = dc.WriteTimeout
		}
		if cc.IdleTimeout == 0 {
			cc.IdleTimeout = dc.IdleTimeout
		}
		if cc.HeartbeatInterval == 0 {
			cc.HeartbeatInterval = dc.HeartbeatInterval
		}
		if cc.MaxMessageSize == 0 {
			cc.MaxMessageSize = dc.MaxMessageSize
		}
		if cc.MaxEventQueue == 0 {
			cc.MaxEventQueue = dc.MaxEventQueue
		}
	}
	if c.SweepSchedule == "" {
		c.SweepSchedule = d.SweepSchedule
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.StorageTTL == 0 {
		c.StorageTTL = d.StorageTTL
	}
	if c.Namespace == "" {
		c.Namespace = d.Namespace
	}
}

// Validate reports configuration values that cannot work.
func (c *ServerConfig) Validate() error {
	var errs []error
	cc := c.ConnectionConfig
	if cc != nil {
		if cc.HeartbeatInterval >= cc.IdleTimeout {
			errs = append(errs, fmt.Errorf("heartbeat interval %s must be shorter than idle timeout %s",
				cc.HeartbeatInterval, cc.IdleTimeout))
		}
		if cc.MaxEventQueue < 1 {
			errs = append(errs, errors.New("max event queue must be positive"))
		}
		if cc.SuspendTimeout < 0 {
			errs = append(errs, errors.New("suspend timeout must not be negative"))
		}
	}
	if c.MetricsPath != "" && !strings.HasPrefix(c.MetricsPath, "/") {
		errs = append(errs, fmt.Errorf("metrics path %q must start with /", c.MetricsPath))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("server: invalid config: %w", err)
	}
	return nil
}
