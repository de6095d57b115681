package config

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Defaults applied when the YAML file omits a key.
const (
	DefaultPort               = 3001
	DefaultMaxRequestSize     = 4 * 1024 * 1024 // 4 MiB
	DefaultRequestTimeout     = 60 * time.Second
	DefaultSessionIdleTimeout = 30 * time.Minute
	DefaultShutdownGrace      = 10 * time.Second
	DefaultSweepInterval      = 60 * time.Second
	DefaultDBRelativeDir      = "memory-bank"
	DefaultDBExtension        = ".gmdb"
	DefaultServerName         = "graphmem"
	DefaultServerVersion      = "0.0.0-dev"
)

// Config holds the server configuration. All reads go through the getters,
// which are safe to call while a watcher reloads the file.
type Config struct {
	mu     sync.RWMutex
	path   string
	logger *zap.Logger

	serverName    string
	serverVersion string
	port          int
	listenAddr    string

	maxRequestSize     int64
	requestTimeout     time.Duration
	sessionIdleTimeout time.Duration
	shutdownGrace      time.Duration
	sweepInterval      time.Duration

	corsOrigins []string

	dbRelativeDir string
	dbExtension   string

	debugLevel int
	logFile    string

	ssl SSLSettings
}

// SSLSettings mirrors the optional TLS section of the YAML file.
type SSLSettings struct {
	Enabled      bool
	Mode         string // "manual" or "acme"
	CertFile     string
	KeyFile      string
	AcmeDomains  []string
	AcmeEmail    string
	AcmeCacheDir string
}

// Default returns a configuration with all defaults and no backing file.
func Default(logger *zap.Logger) *Config {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Config{
		logger:             logger,
		serverName:         DefaultServerName,
		serverVersion:      DefaultServerVersion,
		port:               DefaultPort,
		maxRequestSize:     DefaultMaxRequestSize,
		requestTimeout:     DefaultRequestTimeout,
		sessionIdleTimeout: DefaultSessionIdleTimeout,
		shutdownGrace:      DefaultShutdownGrace,
		sweepInterval:      DefaultSweepInterval,
		dbRelativeDir:      DefaultDBRelativeDir,
		dbExtension:        DefaultDBExtension,
		ssl:                SSLSettings{Mode: "manual", AcmeCacheDir: "./.autocert-cache"},
	}
}

func (c *Config) ServerName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverName
}

func (c *Config) ServerVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverVersion
}

// ListenAddr returns the HTTP listen address, ":<port>" unless overridden.
func (c *Config) ListenAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.listenAddr != "" {
		return c.listenAddr
	}
	return fmt.Sprintf(":%d", c.port)
}

// SetListenAddr overrides the address derived from the port key.
func (c *Config) SetListenAddr(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listenAddr = addr
}

func (c *Config) MaxRequestSize() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxRequestSize
}

func (c *Config) RequestTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.requestTimeout
}

func (c *Config) SessionIdleTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionIdleTimeout
}

func (c *Config) ShutdownGrace() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shutdownGrace
}

func (c *Config) SweepInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sweepInterval
}

func (c *Config) CORSOrigins() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.corsOrigins))
	copy(out, c.corsOrigins)
	return out
}

func (c *Config) DBRelativeDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dbRelativeDir
}

func (c *Config) DBExtension() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dbExtension
}

func (c *Config) DebugLevel() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.debugLevel
}

func (c *Config) LogFile() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logFile
}

func (c *Config) SSL() SSLSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ssl
}
