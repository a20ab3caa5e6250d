// Package config provides configuration management for presenced.
//
// Values are layered: built-in defaults, then the YAML config file, then
// PRESENCED_* environment variables, then command-line flags.
//
// Config file locations (priority order):
//  1. $PRESENCED_CONFIG
//  2. ./presenced.yaml
//  3. ~/.config/presenced/config.yaml
//  4. /etc/presenced/config.yaml
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidInterval   = errors.New("interval must be positive")
	ErrMissingController = errors.New("controller.hostname is required for the unifi source")
	ErrMissingTopic      = errors.New("all four topics must be set")
	ErrUnknownSource     = errors.New("unknown station source")
	ErrUnknownDriver     = errors.New("unknown database driver")
	ErrMissingTarget     = errors.New("source target is required")
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	return cfg, path, nil
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	// Controllers ship self-signed certificates
	cfg := &Config{Controller: ControllerConfig{InsecureSkipVerify: true}}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Listen == "" {
		c.Listen = "[::1]:8080"
	}
	if c.Interval == 0 {
		c.Interval = Duration(time.Minute)
	}
	if c.Source == "" {
		c.Source = SourceUniFi
	}
	if c.AnonymousName == "" {
		c.AnonymousName = "Anonymous"
	}
	if c.UnassignedWindow == 0 {
		c.UnassignedWindow = Duration(30 * time.Minute)
	}
	if c.Controller.Site == "" {
		c.Controller.Site = "default"
	}
	if c.Controller.Timeout == 0 {
		c.Controller.Timeout = Duration(15 * time.Second)
	}
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://127.0.0.1:4222"
	}
	if c.NATS.Stream == "" {
		c.NATS.Stream = "PRESENCE"
	}
	if c.NATS.ClientName == "" {
		c.NATS.ClientName = "presenced"
	}
	if c.NATS.ReconnectWait == 0 {
		c.NATS.ReconnectWait = Duration(2 * time.Second)
	}
	if c.NATS.PublishTimeout == 0 {
		c.NATS.PublishTimeout = Duration(5 * time.Second)
	}
	if c.Topics.SpaceStatus == "" {
		c.Topics.SpaceStatus = "space.status"
	}
	if c.Topics.DeviceCount == "" {
		c.Topics.DeviceCount = "space.members.devices"
	}
	if c.Topics.MemberCount == "" {
		c.Topics.MemberCount = "space.members.present"
	}
	if c.Topics.MemberNames == "" {
		c.Topics.MemberNames = "space.members.names"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./presenced.db"
	}
	if c.SSH.Port == 0 {
		c.SSH.Port = 22
	}
	if c.SSH.Command == "" {
		c.SSH.Command = "ip neigh show"
	}
	if c.SSH.Timeout == 0 {
		c.SSH.Timeout = Duration(10 * time.Second)
	}
	if c.SNMP.Port == 0 {
		c.SNMP.Port = 161
	}
	if c.SNMP.Community == "" {
		c.SNMP.Community = "public"
	}
	if c.SNMP.Timeout == 0 {
		c.SNMP.Timeout = Duration(5 * time.Second)
	}
	if c.Nmap.Timeout == 0 {
		c.Nmap.Timeout = Duration(2 * time.Minute)
	}
}

// envOverrides maps PRESENCED_* variables to setters
var envOverrides = map[string]func(c *Config, v string) error{
	"PRESENCED_LISTEN":               func(c *Config, v string) error { c.Listen = v; return nil },
	"PRESENCED_INTERVAL":             func(c *Config, v string) error { return setDuration(&c.Interval, v) },
	"PRESENCED_SOURCE":               func(c *Config, v string) error { c.Source = Source(v); return nil },
	"PRESENCED_ALLOWED_SUBNETS":      func(c *Config, v string) error { c.AllowedSubnets = splitList(v); return nil },
	"PRESENCED_ANONYMOUS_NAME":       func(c *Config, v string) error { c.AnonymousName = v; return nil },
	"PRESENCED_UNIFI_HOSTNAME":       func(c *Config, v string) error { c.Controller.Hostname = v; return nil },
	"PRESENCED_UNIFI_USERNAME":       func(c *Config, v string) error { c.Controller.Username = v; return nil },
	"PRESENCED_UNIFI_PASSWORD":       func(c *Config, v string) error { c.Controller.Password = v; return nil },
	"PRESENCED_UNIFI_SITE":           func(c *Config, v string) error { c.Controller.Site = v; return nil },
	"PRESENCED_NATS_URL":             func(c *Config, v string) error { c.NATS.URL = v; return nil },
	"PRESENCED_NATS_STREAM":          func(c *Config, v string) error { c.NATS.Stream = v; return nil },
	"PRESENCED_TOPIC_SPACE_STATUS":   func(c *Config, v string) error { c.Topics.SpaceStatus = v; return nil },
	"PRESENCED_TOPIC_DEVICE_COUNT":   func(c *Config, v string) error { c.Topics.DeviceCount = v; return nil },
	"PRESENCED_TOPIC_MEMBER_COUNT":   func(c *Config, v string) error { c.Topics.MemberCount = v; return nil },
	"PRESENCED_TOPIC_MEMBER_NAMES":   func(c *Config, v string) error { c.Topics.MemberNames = v; return nil },
	"PRESENCED_DB_DRIVER":            func(c *Config, v string) error { c.Database.Driver = v; return nil },
	"PRESENCED_DB_PATH":              func(c *Config, v string) error { c.Database.Path = v; return nil },
	"PRESENCED_DB_DSN":               func(c *Config, v string) error { c.Database.DSN = v; return nil },
	"PRESENCED_SSH_PASSWORD":         func(c *Config, v string) error { c.SSH.Password = v; return nil },
	"PRESENCED_SNMP_COMMUNITY":       func(c *Config, v string) error { c.SNMP.Community = v; return nil },
	"PRESENCED_UNIFI_SKIP_VERIFY":    func(c *Config, v string) error { return setBool(&c.Controller.InsecureSkipVerify, v) },
	"PRESENCED_UNASSIGNED_WINDOW":    func(c *Config, v string) error { return setDuration(&c.UnassignedWindow, v) },
	"PRESENCED_CONTROLLER_TIMEOUT":   func(c *Config, v string) error { return setDuration(&c.Controller.Timeout, v) },
	"PRESENCED_NATS_PUBLISH_TIMEOUT": func(c *Config, v string) error { return setDuration(&c.NATS.PublishTimeout, v) },
}

// ApplyEnv overrides values from PRESENCED_* environment variables
func (c *Config) ApplyEnv() error {
	for key, set := range envOverrides {
		value, ok := os.LookupEnv(key)
		if !ok || value == "" {
			continue
		}
		if err := set(c, value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

// Validate checks the configuration for values the engine cannot run with
func (c *Config) Validate() error {
	if c.Interval.Duration() <= 0 {
		return ErrInvalidInterval
	}

	switch c.Source {
	case SourceUniFi:
		if c.Controller.Hostname == "" {
			return ErrMissingController
		}
	case SourceSSH:
		if c.SSH.Host == "" {
			return fmt.Errorf("ssh.host: %w", ErrMissingTarget)
		}
	case SourceSNMP:
		if c.SNMP.Target == "" {
			return fmt.Errorf("snmp.target: %w", ErrMissingTarget)
		}
	case SourceNmap:
		if len(c.AllowedSubnets) == 0 {
			return fmt.Errorf("allowed_subnets: %w", ErrMissingTarget)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSource, c.Source)
	}

	for _, topic := range c.Topics.All() {
		if strings.TrimSpace(topic) == "" {
			return ErrMissingTopic
		}
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Database.Driver)
	}

	if _, err := c.Subnets(); err != nil {
		return err
	}

	return nil
}

// Subnets parses AllowedSubnets into prefixes
func (c *Config) Subnets() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.AllowedSubnets))
	for _, s := range c.AllowedSubnets {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("invalid subnet %q: %w", s, err)
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	return prefixes, nil
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	summary := fmt.Sprintf("Source: %s, Interval: %s, Subnets: %v\n",
		c.Source, c.Interval.Duration(), c.AllowedSubnets)
	summary += fmt.Sprintf("NATS: %s (stream %s), Database: %s\n",
		c.NATS.URL, c.NATS.Stream, c.Database.Driver)
	summary += fmt.Sprintf("Topics: %s", strings.Join(c.Topics.All(), " "))
	return summary
}

func setDuration(d *Duration, v string) error {
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func setBool(b *bool, v string) error {
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
