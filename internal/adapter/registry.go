package adapter

import (
	"fmt"
	"net/netip"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"presenced/internal/config"
)

// Factory builds an unfiltered station source from configuration
type Factory func(cfg *config.Config, allowed []netip.Prefix, logger zerolog.Logger) (StationSource, error)

// Registry maps configured source names to their factories
type Registry struct {
	mu        sync.RWMutex
	factories map[config.Source]Factory
}

// NewRegistry creates a registry with the built-in sources registered
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[config.Source]Factory)}

	r.factories[config.SourceUniFi] = newUniFiFromConfig
	r.factories[config.SourceNmap] = newNmapFromConfig
	r.factories[config.SourceSSH] = newSSHFromConfig
	r.factories[config.SourceSNMP] = newSNMPFromConfig

	return r
}

// Register adds a factory under name
func (r *Registry) Register(name config.Source, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("source %s already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Names lists the registered source names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

// Build creates the configured source wrapped in the allowed-subnet filter
func (r *Registry) Build(cfg *config.Config, logger zerolog.Logger) (StationSource, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Source]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownSource, cfg.Source)
	}

	allowed, err := cfg.Subnets()
	if err != nil {
		return nil, err
	}

	sourceLogger := logger.With().Str("source", string(cfg.Source)).Logger()
	source, err := factory(cfg, allowed, sourceLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s source: %w", cfg.Source, err)
	}

	sourceLogger.Info().
		Strs("allowed_subnets", cfg.AllowedSubnets).
		Msg("station source ready")

	return NewSubnetFilter(source, allowed, sourceLogger), nil
}

func newUniFiFromConfig(cfg *config.Config, _ []netip.Prefix, logger zerolog.Logger) (StationSource, error) {
	c := cfg.Controller
	return NewUniFiSource(UniFiConfig{
		Hostname:           c.Hostname,
		Username:           c.Username,
		Password:           c.Password,
		Site:               c.Site,
		Timeout:            c.Timeout.Duration(),
		InsecureSkipVerify: c.InsecureSkipVerify,
	}, logger), nil
}

func newNmapFromConfig(cfg *config.Config, allowed []netip.Prefix, logger zerolog.Logger) (StationSource, error) {
	return NewNmapSource(PrefixTargets(allowed), logger,
		WithTimeout(cfg.Nmap.Timeout.Duration()),
		WithPrivileged(cfg.Nmap.Privileged),
	), nil
}

func newSSHFromConfig(cfg *config.Config, _ []netip.Prefix, logger zerolog.Logger) (StationSource, error) {
	c := cfg.SSH
	return NewSSHNeighborSource(SSHNeighborConfig{
		Host:           c.Host,
		Port:           c.Port,
		Username:       c.Username,
		Password:       c.Password,
		PrivateKeyPath: c.PrivateKeyPath,
		Passphrase:     c.Passphrase,
		Command:        c.Command,
		Timeout:        c.Timeout.Duration(),
	}, logger), nil
}

func newSNMPFromConfig(cfg *config.Config, _ []netip.Prefix, logger zerolog.Logger) (StationSource, error) {
	c := cfg.SNMP
	return NewSNMPSource(SNMPConfig{
		Target:    c.Target,
		Port:      c.Port,
		Community: c.Community,
		Timeout:   c.Timeout.Duration(),
		Retries:   c.Retries,
	}, logger), nil
}
