// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/BSWANG/v6d/lib/objectid"
)

// Deployment values.
const (
	Local       = "local"
	Distributed = "distributed"
)

// Config is the daemon configuration.
type Config struct {
	// InstanceID identifies the instance within its cluster. Every
	// object id the instance issues carries it.
	InstanceID uint64 `yaml:"instance_id"`

	// Deployment is "local" for a standalone instance or
	// "distributed" for a member of a cluster.
	Deployment string `yaml:"deployment"`

	// IPCSocket is the Unix socket colocated clients connect to.
	IPCSocket string `yaml:"ipc_socket"`

	// RPCEndpoint is the host:port remote clients and other
	// instances connect to. Empty disables the RPC listener.
	RPCEndpoint string `yaml:"rpc_endpoint"`

	SharedMemory SharedMemoryConfig `yaml:"shared_memory"`
	Cluster      ClusterConfig      `yaml:"cluster"`
	Auth         AuthConfig         `yaml:"auth"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	// Compression is the default blob payload compression offered to
	// RPC sessions that do not ask for one: none, lz4 or zstd.
	Compression string `yaml:"compression"`

	// MaxMessageSize bounds one request or response frame.
	MaxMessageSize Size `yaml:"max_message_size"`
}

// SharedMemoryConfig configures the blob arena.
type SharedMemoryConfig struct {
	// Path is the arena file. It must not exist when the daemon
	// starts and is removed when the daemon exits.
	Path string `yaml:"path"`

	// Size is the arena capacity.
	Size Size `yaml:"size"`
}

// ClusterConfig configures membership in a cluster.
type ClusterConfig struct {
	// Seed is the RPC endpoint of the instance hosting the cluster
	// registry. Empty makes this instance the host.
	Seed string `yaml:"seed"`

	// Username and Password are presented to the seed when it
	// requires authentication.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// SyncInterval is how often the registry view is refreshed.
	SyncInterval Duration `yaml:"sync_interval"`

	// HeartbeatInterval is how often the instance reports its status.
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`

	// Expiry drops members that have not reported for this long, on
	// the hosting instance. Zero keeps members until they leave.
	Expiry Duration `yaml:"expiry"`
}

// AuthConfig configures session authentication.
type AuthConfig struct {
	// Users maps usernames to bcrypt password hashes. Empty disables
	// authentication.
	Users map[string]string `yaml:"users"`
}

// Size is a byte count that unmarshals from an integer or a
// human-readable string.
type Size int64

func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return err
	}
	size, err := ParseSize(text)
	if err != nil {
		return err
	}
	*s = size
	return nil
}

func (s Size) String() string {
	return humanize.IBytes(uint64(s))
}

// ParseSize parses "268435456", "256MiB" or "0.5 GB".
func ParseSize(text string) (Size, error) {
	bytes, err := humanize.ParseBytes(strings.TrimSpace(text))
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", text, err)
	}
	return Size(bytes), nil
}

// Duration is a time.Duration that unmarshals from a Go duration
// string.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Default returns the base configuration a file is loaded over.
func Default() *Config {
	return &Config{
		InstanceID:  0,
		Deployment:  Local,
		IPCSocket:   "/var/run/v6d.sock",
		RPCEndpoint: "0.0.0.0:9600",
		SharedMemory: SharedMemoryConfig{
			Path: "/dev/shm/v6d-${USER:-root}.arena",
			Size: 256 << 20,
		},
		Cluster: ClusterConfig{
			SyncInterval:      Duration(5 * time.Second),
			HeartbeatInterval: Duration(10 * time.Second),
			Expiry:            Duration(60 * time.Second),
		},
		LogLevel:       "info",
		Compression:    "none",
		MaxMessageSize: 1 << 30,
	}
}

// Load loads configuration from the file named by V6D_CONFIG. It fails
// when the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv("V6D_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("V6D_CONFIG environment variable not set; " +
			"set it to the path of a v6d config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path over [Default] and expands
// variables in path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML, so one set of tags serves both.
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// Expand applies variable expansion to path fields. LoadFile calls it;
// callers that override fields from flags call it again.
func (c *Config) Expand() {
	c.expandVariables()
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.IPCSocket = expandVars(c.IPCSocket, vars)
	c.RPCEndpoint = expandVars(c.RPCEndpoint, vars)
	c.SharedMemory.Path = expandVars(c.SharedMemory.Path, vars)
	c.Cluster.Seed = expandVars(c.Cluster.Seed, vars)
	c.Cluster.Password = expandVars(c.Cluster.Password, vars)
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

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Level returns the configured log level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// minArenaSize is the smallest arena worth serving.
const minArenaSize = 64 << 10

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.InstanceID > uint64(objectid.MaxInstanceID) {
		errs = append(errs, fmt.Errorf("instance_id %d exceeds the maximum %d", c.InstanceID, objectid.MaxInstanceID))
	}
	if c.Deployment != Local && c.Deployment != Distributed {
		errs = append(errs, fmt.Errorf("deployment must be %q or %q, got %q", Local, Distributed, c.Deployment))
	}
	if c.Deployment == Local && c.Cluster.Seed != "" {
		errs = append(errs, fmt.Errorf("cluster.seed requires deployment %q", Distributed))
	}
	if c.IPCSocket == "" {
		errs = append(errs, fmt.Errorf("ipc_socket is required"))
	}
	if c.SharedMemory.Path == "" {
		errs = append(errs, fmt.Errorf("shared_memory.path is required"))
	}
	if c.SharedMemory.Size < minArenaSize {
		errs = append(errs, fmt.Errorf("shared_memory.size must be at least %s, got %s", Size(minArenaSize), c.SharedMemory.Size))
	}
	if c.Cluster.SyncInterval <= 0 {
		errs = append(errs, fmt.Errorf("cluster.sync_interval must be positive"))
	}
	if c.Cluster.HeartbeatInterval <= 0 {
		errs = append(errs, fmt.Errorf("cluster.heartbeat_interval must be positive"))
	}
	if c.Cluster.Expiry < 0 {
		errs = append(errs, fmt.Errorf("cluster.expiry must not be negative"))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	switch c.Compression {
	case "", "none", "lz4", "zstd":
	default:
		errs = append(errs, fmt.Errorf("compression must be one of none, lz4, zstd; got %q", c.Compression))
	}
	if c.MaxMessageSize < 1<<20 {
		errs = append(errs, fmt.Errorf("max_message_size must be at least 1MiB, got %s", c.MaxMessageSize))
	}

	return errors.Join(errs...)
}
