package adapter

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	"github.com/rs/zerolog"

	"presenced/internal/domain"
)

// NmapSource discovers stations with an nmap host discovery sweep (-sn).
// Hardware addresses are only reported for hosts on a directly attached
// segment, so the sweep must run inside the space's network.
type NmapSource struct {
	targets    []string
	timeout    time.Duration
	privileged bool
	logger     zerolog.Logger
}

// NewNmapSource creates a sweep over the given CIDR ranges or addresses
func NewNmapSource(targets []string, logger zerolog.Logger, opts ...NmapOption) *NmapSource {
	source := &NmapSource{
		targets: targets,
		timeout: 2 * time.Minute,
		logger:  logger,
	}

	for _, opt := range opts {
		opt(source)
	}

	return source
}

// Name returns the source identifier
func (n *NmapSource) Name() string {
	return "nmap"
}

// FetchStations runs one sweep over all targets
func (n *NmapSource) FetchStations(ctx context.Context) ([]domain.Station, error) {
	if len(n.targets) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	opts := []nmap.Option{
		nmap.WithTargets(n.targets...),
		nmap.WithPingScan(),
	}
	if n.privileged {
		opts = append(opts, nmap.WithPrivileged())
	}

	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		// Missing binary
		return nil, fmt.Errorf("%w: %w", ErrControllerUnreachable, err)
	}

	n.logger.Debug().Strs("targets", n.targets).Msg("starting host discovery sweep")
	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, fmt.Errorf("%w: sweep failed: %w", ErrControllerUnreachable, err)
	}

	if warnings != nil && len(*warnings) > 0 {
		n.logger.Warn().Strs("warnings", *warnings).Msg("nmap reported warnings")
	}

	return stationsFromRun(result)
}

// stationsFromRun converts sweep results into stations. Hosts that are down
// or have no hardware address are skipped.
func stationsFromRun(result *nmap.Run) ([]domain.Station, error) {
	if result == nil {
		return nil, fmt.Errorf("%w: nil scan result", ErrControllerProtocol)
	}

	var stations []domain.Station
	for _, host := range result.Hosts {
		if host.Status.State != "up" {
			continue
		}

		var mac, ip string
		for _, addr := range host.Addresses {
			switch addr.AddrType {
			case "mac":
				mac = addr.Addr
			case "ipv4":
				ip = addr.Addr
			case "ipv6":
				if ip == "" {
					ip = addr.Addr
				}
			}
		}

		if mac == "" {
			continue
		}
		stations = append(stations, domain.Station{HardwareAddress: mac, IP: ip})
	}

	return stations, nil
}

// PrefixTargets renders allowed subnets as nmap targets
func PrefixTargets(prefixes []netip.Prefix) []string {
	targets := make([]string, 0, len(prefixes))
	for _, prefix := range prefixes {
		targets = append(targets, prefix.Masked().String())
	}
	return targets
}
