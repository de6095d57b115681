package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// yamlConfig is the on-disk configuration structure.
type yamlConfig struct {
	Server struct {
		Name                 string   `yaml:"name"`
		Version              string   `yaml:"version"`
		Port                 int      `yaml:"port"`
		MaxRequestSize       int64    `yaml:"max_request_size"`
		RequestTimeoutMs     int64    `yaml:"request_timeout_ms"`
		SessionIdleTimeoutMs int64    `yaml:"session_idle_timeout_ms"`
		ShutdownGraceMs      int64    `yaml:"shutdown_grace_ms"`
		SweepIntervalMs      int64    `yaml:"sweep_interval_ms"`
		CorsOrigins          []string `yaml:"cors_origins"`
		DebugLevel           int      `yaml:"debug_level"`
		LogFile              string   `yaml:"log_file"`
		SSL                  struct {
			Enabled      bool     `yaml:"enabled"`
			Mode         string   `yaml:"mode"`
			CertFile     string   `yaml:"cert_file"`
			KeyFile      string   `yaml:"key_file"`
			AcmeDomains  []string `yaml:"acme_domains"`
			AcmeEmail    string   `yaml:"acme_email"`
			AcmeCacheDir string   `yaml:"acme_cache_dir"`
		} `yaml:"ssl"`
	} `yaml:"server"`

	Database struct {
		RelativeDir string `yaml:"relative_dir"`
		Extension   string `yaml:"extension"`
	} `yaml:"database"`
}

// Load reads a YAML configuration file over the defaults.
func Load(configPath string, logger *zap.Logger) (*Config, error) {
	c := Default(logger)
	c.path = configPath
	if err := c.Update(); err != nil {
		return nil, err
	}
	return c, nil
}

// Update reloads configuration from the YAML file.
func (c *Config) Update() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" {
		return nil
	}
	c.logger.Debug("Updating configuration from YAML file", zap.String("path", c.path))

	data, err := os.ReadFile(c.path)
	if err != nil {
		c.logger.Error("Failed to read config file", zap.Error(err))
		return err
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		c.logger.Error("Failed to parse YAML", zap.Error(err))
		return err
	}

	if yamlCfg.Server.Name != "" {
		c.serverName = yamlCfg.Server.Name
	}
	if yamlCfg.Server.Version != "" {
		c.serverVersion = yamlCfg.Server.Version
	}
	if yamlCfg.Server.Port > 0 {
		c.port = yamlCfg.Server.Port
	}
	if yamlCfg.Server.MaxRequestSize > 0 {
		c.maxRequestSize = yamlCfg.Server.MaxRequestSize
	}
	if yamlCfg.Server.RequestTimeoutMs > 0 {
		c.requestTimeout = time.Duration(yamlCfg.Server.RequestTimeoutMs) * time.Millisecond
	}
	if yamlCfg.Server.SessionIdleTimeoutMs > 0 {
		c.sessionIdleTimeout = time.Duration(yamlCfg.Server.SessionIdleTimeoutMs) * time.Millisecond
	}
	if yamlCfg.Server.ShutdownGraceMs > 0 {
		c.shutdownGrace = time.Duration(yamlCfg.Server.ShutdownGraceMs) * time.Millisecond
	}
	if yamlCfg.Server.SweepIntervalMs > 0 {
		c.sweepInterval = time.Duration(yamlCfg.Server.SweepIntervalMs) * time.Millisecond
	}
	c.corsOrigins = yamlCfg.Server.CorsOrigins
	if yamlCfg.Server.DebugLevel >= 0 && yamlCfg.Server.DebugLevel <= 3 {
		c.debugLevel = yamlCfg.Server.DebugLevel
	}
	c.logFile = yamlCfg.Server.LogFile

	c.ssl.Enabled = yamlCfg.Server.SSL.Enabled
	c.ssl.Mode = strings.ToLower(yamlCfg.Server.SSL.Mode)
	if c.ssl.Mode != "acme" {
		c.ssl.Mode = "manual"
	}
	c.ssl.CertFile = yamlCfg.Server.SSL.CertFile
	c.ssl.KeyFile = yamlCfg.Server.SSL.KeyFile
	c.ssl.AcmeDomains = yamlCfg.Server.SSL.AcmeDomains
	c.ssl.AcmeEmail = yamlCfg.Server.SSL.AcmeEmail
	if yamlCfg.Server.SSL.AcmeCacheDir != "" {
		c.ssl.AcmeCacheDir = yamlCfg.Server.SSL.AcmeCacheDir
	}

	if yamlCfg.Database.RelativeDir != "" {
		if filepath.IsAbs(yamlCfg.Database.RelativeDir) {
			return fmt.Errorf("database.relative_dir must be relative, got %q", yamlCfg.Database.RelativeDir)
		}
		c.dbRelativeDir = yamlCfg.Database.RelativeDir
	}
	if yamlCfg.Database.Extension != "" {
		ext := yamlCfg.Database.Extension
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.dbExtension = ext
	}

	return nil
}

// Watch reloads the configuration whenever the file changes. It returns a
// stop function. Editors often replace the file, so Create events on the
// same path are handled as well.
func (c *Config) Watch() (func(), error) {
	if c.path == "" {
		return func() {}, nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(c.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := c.Update(); err != nil {
					c.logger.Warn("Config reload failed, keeping previous values", zap.Error(err))
				} else {
					c.logger.Info("Configuration reloaded", zap.String("path", c.path))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.logger.Error("Config watcher error", zap.Error(err))
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
