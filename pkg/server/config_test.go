package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDefaultServerConfigIsValid(t *testing.T) {
	if err := DefaultServerConfig().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestServerConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ServerConfig)
		want   string
	}{
		{"heartbeat not below idle", func(c *ServerConfig) {
			c.ConnectionConfig.HeartbeatInterval = c.ConnectionConfig.IdleTimeout
		}, "heartbeat interval"},
		{"no event queue", func(c *ServerConfig) { c.ConnectionConfig.MaxEventQueue = 0 }, "max event queue"},
		{"negative suspend timeout", func(c *ServerConfig) { c.ConnectionConfig.SuspendTimeout = -time.Second }, "suspend timeout"},
		{"relative metrics path", func(c *ServerConfig) { c.MetricsPath = "metrics" }, "metrics path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultServerConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate=%v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &ServerConfig{
		SocketPath:       "ws/",
		ConnectionConfig: &ConnectionConfig{IdleTimeout: time.Minute},
	}
	cfg.applyDefaults()

	if cfg.SocketPath != "/ws" {
		t.Fatalf("SocketPath=%q, want /ws", cfg.SocketPath)
	}
	if cfg.Address != ":8080" || cfg.Namespace != "jj" || cfg.SweepSchedule != "@every 5s" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.ConnectionConfig.IdleTimeout != time.Minute {
		t.Fatalf("IdleTimeout=%s, want 1m (kept)", cfg.ConnectionConfig.IdleTimeout)
	}
	if cfg.ConnectionConfig.HeartbeatInterval != 15*time.Second {
		t.Fatalf("HeartbeatInterval=%s, want 15s", cfg.ConnectionConfig.HeartbeatInterval)
	}
}

func TestConfigWithCopies(t *testing.T) {
	base := DefaultServerConfig()
	next := base.WithAddress(":9000").WithMetrics("/metrics")
	if base.Address != ":8080" || base.MetricsPath != "" {
		t.Fatal("With* modified the receiver")
	}
	if next.Address != ":9000" || next.MetricsPath != "/metrics" {
		t.Fatalf("next=%+v", next)
	}
	next.ConnectionConfig.MaxEventQueue = 1
	if base.ConnectionConfig.MaxEventQueue == 1 {
		t.Fatal("Clone shares ConnectionConfig")
	}
}

func TestSameOriginCheck(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://example.com", true},
		{"http://evil.com", false},
		{"://bad", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			r := httptest.NewRequest("GET", "http://example.com/_jj/socket/chat", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := SameOriginCheck(r); got != tt.want {
				t.Fatalf("SameOriginCheck(%q)=%v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestAllowOrigins(t *testing.T) {
	check := AllowOrigins("https://app.example.org/")
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://example.com", true},
		{"https://app.example.org", true},
		{"https://other.example.org", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			r := httptest.NewRequest("GET", "http://example.com/_jj/socket/chat", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := check(r); got != tt.want {
				t.Fatalf("check(%q)=%v, want %v", tt.origin, got, tt.want)
			}
		})
	}

	r := httptest.NewRequest("GET", "http://example.com/_jj/socket/chat", nil)
	r.Header.Set("Origin", "https://anywhere.test")
	if !AllowOrigins("*")(r) {
		t.Fatal("wildcard rejected an origin")
	}
}
