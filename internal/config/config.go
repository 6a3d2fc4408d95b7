package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jibbrjabbr/jj/internal/errors"
	"github.com/jibbrjabbr/jj/pkg/clientstore"
	"github.com/jibbrjabbr/jj/pkg/server"
	"gopkg.in/yaml.v3"
)

// Config file names, in lookup order.
const (
	YAMLFileName = "jj.yaml"
	YMLFileName  = "jj.yml"
	JSONFileName = "jj.json"
)

var fileNames = []string{YAMLFileName, YMLFileName, JSONFileName}

const (
	// DefaultAddress is the default listen address.
	DefaultAddress = ":8080"

	// DefaultMetricsPath is where metrics are served when enabled.
	DefaultMetricsPath = "/metrics"

	// DefaultServiceName names the service in traces.
	DefaultServiceName = "jj"
)

// Config represents a jj project configuration file.
type Config struct {
	// Name is the project name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Server contains listener and connection settings.
	Server ServerConfig `json:"server" yaml:"server"`

	// Hosts lists the script hosts to serve.
	Hosts []HostConfig `json:"hosts,omitempty" yaml:"hosts,omitempty"`

	// Static serves page files next to the sockets.
	Static StaticConfig `json:"static,omitempty" yaml:"static,omitempty"`

	// Storage configures client storage persistence.
	Storage StorageConfig `json:"storage,omitempty" yaml:"storage,omitempty"`

	// Tracing configures the OTLP trace exporter.
	Tracing TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`

	// Log configures the process logger.
	Log LogConfig `json:"log,omitempty" yaml:"log,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains listener and connection settings.
type ServerConfig struct {
	Address           string   `json:"address,omitempty" yaml:"address,omitempty"`
	SocketPath        string   `json:"socketPath,omitempty" yaml:"socketPath,omitempty"`
	AllowedOrigins    []string `json:"allowedOrigins,omitempty" yaml:"allowedOrigins,omitempty"`
	ReadTimeout       Duration `json:"readTimeout,omitempty" yaml:"readTimeout,omitempty"`
	WriteTimeout      Duration `json:"writeTimeout,omitempty" yaml:"writeTimeout,omitempty"`
	IdleTimeout       Duration `json:"idleTimeout,omitempty" yaml:"idleTimeout,omitempty"`
	HeartbeatInterval Duration `json:"heartbeatInterval,omitempty" yaml:"heartbeatInterval,omitempty"`
	SuspendTimeout    Duration `json:"suspendTimeout,omitempty" yaml:"suspendTimeout,omitempty"`
	ShutdownTimeout   Duration `json:"shutdownTimeout,omitempty" yaml:"shutdownTimeout,omitempty"`
	SweepSchedule     string   `json:"sweepSchedule,omitempty" yaml:"sweepSchedule,omitempty"`
	MaxMessageSize    int64    `json:"maxMessageSize,omitempty" yaml:"maxMessageSize,omitempty"`
	MaxEventQueue     int      `json:"maxEventQueue,omitempty" yaml:"maxEventQueue,omitempty"`
}

// HostConfig names a host and the script that drives it.
type HostConfig struct {
	Name   string `json:"name" yaml:"name"`
	Script string `json:"script" yaml:"script"`
}

// StaticConfig contains static file serving configuration.
type StaticConfig struct {
	// Dir is the directory containing static files.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// StorageConfig selects the client storage backend. An empty Backend
// disables persistence.
type StorageConfig struct {
	Backend   string   `json:"backend,omitempty" yaml:"backend,omitempty"`
	Driver    string   `json:"driver,omitempty" yaml:"driver,omitempty"`
	DSN       string   `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	Table     string   `json:"table,omitempty" yaml:"table,omitempty"`
	Bucket    string   `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix    string   `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region    string   `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint  string   `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	PathStyle bool     `json:"pathStyle,omitempty" yaml:"pathStyle,omitempty"`
	TTL       Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// TracingConfig configures OTLP trace export. An empty Endpoint disables
// tracing.
type TracingConfig struct {
	Endpoint    string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Insecure    bool    `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	ServiceName string  `json:"serviceName,omitempty" yaml:"serviceName,omitempty"`
	SampleRatio float64 `json:"sampleRatio,omitempty" yaml:"sampleRatio,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled serves metrics on Path.
	Enabled bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from path, which may be a config file or a
// directory holding one.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(path)
		}
		return nil, errors.New("JJ102").Wrap(err)
	}
	if !info.IsDir() {
		return LoadFile(path)
	}
	file, ok := find(path)
	if !ok {
		return nil, notFound(path)
	}
	return LoadFile(file)
}

// LoadFile reads configuration from the specified file path. The format
// follows the file extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(filepath.Dir(path))
		}
		return nil, errors.New("JJ102").Wrap(err)
	}

	cfg := &Config{}
	if isJSON(path) {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(cfg)
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(cfg)
		if err == io.EOF {
			err = nil
		}
	}
	if err != nil {
		return nil, errors.New("JJ102").
			WithDetail("Failed to parse " + filepath.Base(path) + ".").
			WithSuggestion("Check the file for typos in field names and for valid syntax").
			Wrap(err)
	}

	cfg.configPath = path
	cfg.applyDefaults()
	return cfg, nil
}

func notFound(dir string) error {
	return errors.New("JJ101").
		WithDetail("No jj.yaml, jj.yml or jj.json found in " + dir).
		WithSuggestion("Create jj.yaml listing your hosts and their scripts")
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

func find(dir string) (string, bool) {
	for _, name := range fileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to path, as JSON or YAML by extension.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return errors.New("JJ102").Wrap(err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("JJ102").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.Metrics.Enabled && c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = DefaultServiceName
	}
	if c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = 1
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.New("JJ103").WithDetail(fmt.Sprintf(format, args...))
	}

	for name, d := range map[string]Duration{
		"server.readTimeout":       c.Server.ReadTimeout,
		"server.writeTimeout":      c.Server.WriteTimeout,
		"server.idleTimeout":       c.Server.IdleTimeout,
		"server.heartbeatInterval": c.Server.HeartbeatInterval,
		"server.suspendTimeout":    c.Server.SuspendTimeout,
		"server.shutdownTimeout":   c.Server.ShutdownTimeout,
		"storage.ttl":              c.Storage.TTL,
	} {
		if d < 0 {
			return invalid("%s must not be negative, got %s", name, d)
		}
	}
	if c.Server.MaxMessageSize < 0 || c.Server.MaxEventQueue < 0 {
		return invalid("server.maxMessageSize and server.maxEventQueue must not be negative")
	}

	seen := make(map[string]bool)
	for i, h := range c.Hosts {
		if h.Name == "" || strings.Contains(h.Name, "/") {
			return invalid("hosts[%d].name must be a non-empty name without '/'", i)
		}
		if seen[h.Name] {
			return invalid("host %q is listed twice", h.Name)
		}
		seen[h.Name] = true
		if h.Script == "" {
			return invalid("host %q has no script", h.Name)
		}
	}

	switch c.Storage.Backend {
	case "", "memory":
	case "sql":
		if c.Storage.Driver == "" || c.Storage.DSN == "" {
			return invalid("storage backend sql needs driver and dsn")
		}
		if _, err := clientstore.ParseDialect(c.Storage.Driver); err != nil {
			return invalid("storage.driver: %v", err)
		}
	case "s3":
		if c.Storage.Bucket == "" {
			return invalid("storage backend s3 needs a bucket")
		}
	default:
		return errors.New("JJ104").WithDetail(fmt.Sprintf("storage.backend %q is not one of memory, sql or s3", c.Storage.Backend))
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return invalid("tracing.sampleRatio must be between 0 and 1")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format %q is not text or json", c.Log.Format)
	}
	return nil
}

// resolve makes path relative to the config file's directory.
func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Dir(), path)
}

// ScriptPath returns the path of a host's script.
func (c *Config) ScriptPath(h HostConfig) string {
	return c.resolve(h.Script)
}

// StaticPath returns the static file directory, or "" when none is set.
func (c *Config) StaticPath() string {
	return c.resolve(c.Static.Dir)
}

// ToServerConfig converts the file settings into a server configuration.
// Zero values keep the server defaults.
func (c *Config) ToServerConfig() *server.ServerConfig {
	sc := server.DefaultServerConfig()
	s := c.Server

	sc.Address = s.Address
	if s.SocketPath != "" {
		sc.SocketPath = s.SocketPath
	}
	if len(s.AllowedOrigins) > 0 {
		sc.CheckOrigin = server.AllowOrigins(s.AllowedOrigins...)
	}
	if s.SweepSchedule != "" {
		sc.SweepSchedule = s.SweepSchedule
	}
	if s.ShutdownTimeout > 0 {
		sc.ShutdownTimeout = s.ShutdownTimeout.Std()
	}
	if c.Storage.TTL > 0 {
		sc.StorageTTL = c.Storage.TTL.Std()
	}
	if c.Metrics.Enabled {
		sc.MetricsPath = c.Metrics.Path
	}

	cc := sc.ConnectionConfig.Clone()
	if s.ReadTimeout > 0 {
		cc.ReadTimeout = s.ReadTimeout.Std()
	}
	if s.WriteTimeout > 0 {
		cc.WriteTimeout = s.WriteTimeout.Std()
	}
	if s.IdleTimeout > 0 {
		cc.IdleTimeout = s.IdleTimeout.Std()
	}
	if s.HeartbeatInterval > 0 {
		cc.HeartbeatInterval = s.HeartbeatInterval.Std()
	}
	if s.SuspendTimeout > 0 {
		cc.SuspendTimeout = s.SuspendTimeout.Std()
	}
	if s.MaxMessageSize > 0 {
		cc.MaxMessageSize = s.MaxMessageSize
	}
	if s.MaxEventQueue > 0 {
		cc.MaxEventQueue = s.MaxEventQueue
	}
	sc.ConnectionConfig = cc
	return sc
}

// ClientStoreConfig returns the storage settings for clientstore.Open.
func (c *Config) ClientStoreConfig() clientstore.Config {
	st := c.Storage
	return clientstore.Config{
		Backend:   st.Backend,
		Driver:    st.Driver,
		DSN:       st.DSN,
		Table:     st.Table,
		Bucket:    st.Bucket,
		Prefix:    st.Prefix,
		Region:    st.Region,
		Endpoint:  st.Endpoint,
		PathStyle: st.PathStyle,
	}
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, ok := find(dir)
	return ok
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing a config file, or an error if not found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("JJ101").
				WithDetail("No jj.yaml, jj.yml or jj.json found in " + startDir + " or any parent directory").
				WithSuggestion("Create jj.yaml listing your hosts and their scripts")
		}
		dir = parent
	}
}
