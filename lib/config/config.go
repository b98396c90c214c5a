// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable [Load] reads the config path
// from.
const EnvVar = "RSHIP_EXEC_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local machines.
	Development Environment = "development"
	// Production is for show machines.
	Production Environment = "production"
)

// Config is the master configuration.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// Server locates the orchestration server.
	Server ServerConfig `yaml:"server"`

	// Service identifies this engine to the server.
	Service ServiceConfig `yaml:"service"`

	// Link configures the local link service that supplies the
	// machine id and server URL.
	Link LinkConfig `yaml:"link"`

	// Sync tunes the sync client and lifecycle.
	Sync SyncConfig `yaml:"sync"`

	// WebRTC configures local peer connections.
	WebRTC WebRTCConfig `yaml:"webrtc"`

	// Paths configures file locations.
	Paths PathsConfig `yaml:"paths"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Host declares the components the reference host exposes.
	Host HostConfig `yaml:"host"`

	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	LogLevel string        `yaml:"log_level,omitempty"`
	Server   *ServerConfig `yaml:"server,omitempty"`
	Paths    *PathsConfig  `yaml:"paths,omitempty"`
}

// ServerConfig locates the orchestration server. The link service may
// replace both values at runtime.
type ServerConfig struct {
	// Address is scheme://host, e.g. ws://localhost.
	Address string `yaml:"address"`

	// Port is the server port. Default: 5155
	Port int `yaml:"port"`

	// ReconnectBackoff is the delay between reconnect attempts.
	// Default: 2s
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`

	// PingInterval is how often the socket is pinged. A pong is the
	// liveness signal. Default: 15s
	PingInterval time.Duration `yaml:"ping_interval"`
}

// ServiceConfig identifies this engine.
type ServiceConfig struct {
	// ID overrides the service id. Default: rship-exec
	ID string `yaml:"id"`

	// TypeCode is the service type reported on the instance.
	TypeCode string `yaml:"type_code"`

	// Color is the instance display color.
	Color string `yaml:"color"`

	// FallbackMachineID is used when the link service cannot supply a
	// machine id. Empty means the host name.
	FallbackMachineID string `yaml:"fallback_machine_id"`
}

// LinkConfig configures the local link service client.
type LinkConfig struct {
	// URL is the link service base URL. Empty disables the link
	// service; the fallback identity is used immediately.
	URL string `yaml:"url"`

	// MachineIDPath is the path returning the machine id.
	MachineIDPath string `yaml:"machine_id_path"`

	// ServerURLPath is the path returning the orchestration server URL.
	ServerURLPath string `yaml:"server_url_path"`

	// Timeout bounds each request. Default: 5s
	Timeout time.Duration `yaml:"timeout"`
}

// SyncConfig tunes the sync client and lifecycle.
type SyncConfig struct {
	// TickInterval is how often identity is re-requested. Default: 10s
	TickInterval time.Duration `yaml:"tick_interval"`

	// QueryCapacity bounds the outstanding query table. Default: 256
	QueryCapacity int `yaml:"query_capacity"`
}

// WebRTCConfig configures local peer connections.
type WebRTCConfig struct {
	// ICEServers are STUN/TURN servers for local connections.
	ICEServers []ICEServer `yaml:"ice_servers"`

	// IncludeLoopback gathers loopback candidates. Useful when the
	// viewer runs on the same machine.
	IncludeLoopback bool `yaml:"include_loopback"`
}

// ICEServer is one STUN or TURN server.
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// Root is the base directory for engine state.
	Root string `yaml:"root"`

	// IDStore is the target id snapshot file.
	IDStore string `yaml:"id_store"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Address is the listen address, e.g. :9464. Empty disables the
	// endpoint.
	Address string `yaml:"address"`
}

// HostConfig declares the reference host's components.
type HostConfig struct {
	Components []ComponentConfig `yaml:"components"`
}

// ComponentConfig declares one component.
type ComponentConfig struct {
	Path   string       `yaml:"path"`
	Name   string       `yaml:"name"`
	Kind   string       `yaml:"kind"`
	Toggle bool         `yaml:"toggle"`
	Video  *VideoConfig `yaml:"video,omitempty"`
	Pages  []PageConfig `yaml:"pages"`
}

// VideoConfig gives a component a live video track.
type VideoConfig struct {
	// Codec is the track MIME type. Default: video/VP8
	Codec string `yaml:"codec"`
}

// PageConfig declares one page of parameters.
type PageConfig struct {
	Name       string            `yaml:"name"`
	Parameters []ParameterConfig `yaml:"parameters"`
}

// ParameterConfig declares one parameter.
type ParameterConfig struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label"`
	// Style is the value shape: Float, Int, Str, Toggle, Pulse, XY,
	// XYZ, XYZW, WH, RGB, RGBA, UV, UVW, Menu, StrMenu, File or
	// Sequence.
	Style string   `yaml:"style"`
	Min   *float64 `yaml:"min,omitempty"`
	Max   *float64 `yaml:"max,omitempty"`
	// Components names the channels of a multi-channel Float or Int
	// parameter.
	Components []string    `yaml:"components,omitempty"`
	Menu       []MenuEntry `yaml:"menu,omitempty"`
	Default    any         `yaml:"default,omitempty"`
}

// MenuEntry is one option of a Menu parameter.
type MenuEntry struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "rship-exec")

	return &Config{
		Environment: Development,
		LogLevel:    "info",
		Server: ServerConfig{
			Address:          "ws://localhost",
			Port:             5155,
			ReconnectBackoff: 2 * time.Second,
			PingInterval:     15 * time.Second,
		},
		Service: ServiceConfig{
			ID:       "rship-exec",
			TypeCode: "rship-exec",
			Color:    "#727e51",
		},
		Link: LinkConfig{
			URL:           "http://localhost:5155",
			MachineIDPath: "/machine-id",
			ServerURLPath: "/rship-url",
			Timeout:       5 * time.Second,
		},
		Sync: SyncConfig{
			TickInterval:  10 * time.Second,
			QueryCapacity: 256,
		},
		Paths: PathsConfig{
			Root:    defaultRoot,
			IDStore: filepath.Join(defaultRoot, "ids.cbor.zst"),
		},
	}
}

// Load loads configuration from the RSHIP_EXEC_CONFIG environment
// variable. It fails when the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your config file, or use --config flag", EnvVar)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, on top of
// [Default].
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML once comments and trailing commas
		// are gone.
		data = jsonc.ToJSON(data)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		// Production defaults: quieter logs.
		if overrides == nil {
			overrides = &ConfigOverrides{LogLevel: "warn"}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.LogLevel != "" {
		c.LogLevel = overrides.LogLevel
	}

	if overrides.Server != nil {
		if overrides.Server.Address != "" {
			c.Server.Address = overrides.Server.Address
		}
		if overrides.Server.Port != 0 {
			c.Server.Port = overrides.Server.Port
		}
		if overrides.Server.ReconnectBackoff != 0 {
			c.Server.ReconnectBackoff = overrides.Server.ReconnectBackoff
		}
		if overrides.Server.PingInterval != 0 {
			c.Server.PingInterval = overrides.Server.PingInterval
		}
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.IDStore != "" {
			c.Paths.IDStore = overrides.Paths.IDStore
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"RSHIP_EXEC_ROOT": c.Paths.Root,
		"HOME":            os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["RSHIP_EXEC_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.IDStore = expandVars(c.Paths.IDStore, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// ServerURL returns the WebSocket URL of the orchestration server.
func (c *Config) ServerURL() string {
	return fmt.Sprintf("%s:%d", strings.TrimRight(c.Server.Address, "/"), c.Server.Port)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	levels := []string{"debug", "info", "warn", "error"}
	if !contains(levels, c.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level must be one of: %v", levels))
	}

	if address, err := url.Parse(c.Server.Address); err != nil || address.Scheme == "" || address.Host == "" {
		errs = append(errs, fmt.Errorf("server.address must be scheme://host, got %q", c.Server.Address))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.ReconnectBackoff <= 0 {
		errs = append(errs, fmt.Errorf("server.reconnect_backoff must be positive"))
	}
	if c.Server.PingInterval <= 0 {
		errs = append(errs, fmt.Errorf("server.ping_interval must be positive"))
	}

	if c.Service.ID == "" {
		errs = append(errs, fmt.Errorf("service.id is required"))
	}
	if c.Service.TypeCode == "" {
		errs = append(errs, fmt.Errorf("service.type_code is required"))
	}

	if c.Link.URL != "" {
		if _, err := url.Parse(c.Link.URL); err != nil {
			errs = append(errs, fmt.Errorf("link.url: %w", err))
		}
		if c.Link.Timeout <= 0 {
			errs = append(errs, fmt.Errorf("link.timeout must be positive"))
		}
	}

	if c.Sync.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("sync.tick_interval must be positive"))
	}
	if c.Sync.QueryCapacity <= 0 {
		errs = append(errs, fmt.Errorf("sync.query_capacity must be positive"))
	}

	for i, server := range c.WebRTC.ICEServers {
		if len(server.URLs) == 0 {
			errs = append(errs, fmt.Errorf("webrtc.ice_servers[%d] has no urls", i))
		}
	}

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}

	seen := make(map[string]bool)
	for i, component := range c.Host.Components {
		if component.Path == "" {
			errs = append(errs, fmt.Errorf("host.components[%d].path is required", i))
			continue
		}
		if seen[component.Path] {
			errs = append(errs, fmt.Errorf("host.components[%d]: duplicate path %s", i, component.Path))
		}
		seen[component.Path] = true
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the configured state directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{c.Paths.Root}
	if c.Paths.IDStore != "" {
		paths = append(paths, filepath.Dir(c.Paths.IDStore))
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
