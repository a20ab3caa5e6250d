package adapter

import (
	"context"
	"errors"
	"net/netip"

	"github.com/rs/zerolog"

	"presenced/internal/domain"
)

// Station source failures. Any of these aborts the current cycle only.
var (
	// ErrControllerUnreachable covers connection, DNS and TLS failures
	ErrControllerUnreachable = errors.New("controller unreachable")
	// ErrControllerAuthFailed means the credentials were rejected
	ErrControllerAuthFailed = errors.New("controller authentication failed")
	// ErrControllerProtocol means the station list could not be understood
	ErrControllerProtocol = errors.New("controller protocol error")
)

// StationSource reports the stations currently associated with the network
type StationSource interface {
	// Name returns the unique identifier for this source
	Name() string

	// FetchStations returns the current station list. Stations may lack an IP.
	FetchStations(ctx context.Context) ([]domain.Station, error)
}

// SubnetFilter wraps a StationSource and keeps only stations whose IP lies
// in one of the allowed prefixes
type SubnetFilter struct {
	source  StationSource
	allowed []netip.Prefix
	logger  zerolog.Logger
}

// NewSubnetFilter creates a filtering source. An empty allow list drops every station.
func NewSubnetFilter(source StationSource, allowed []netip.Prefix, logger zerolog.Logger) *SubnetFilter {
	return &SubnetFilter{source: source, allowed: allowed, logger: logger}
}

// Name returns the wrapped source's name
func (f *SubnetFilter) Name() string {
	return f.source.Name()
}

// FetchStations fetches from the wrapped source and filters the result
func (f *SubnetFilter) FetchStations(ctx context.Context) ([]domain.Station, error) {
	stations, err := f.source.FetchStations(ctx)
	if err != nil {
		return nil, err
	}

	kept := FilterStations(stations, f.allowed)
	f.logger.Debug().
		Str("source", f.source.Name()).
		Int("reported", len(stations)).
		Int("kept", len(kept)).
		Msg("filtered stations by subnet")
	return kept, nil
}

// FilterStations drops stations without a parseable IP and stations outside
// every allowed prefix. Order is preserved.
func FilterStations(stations []domain.Station, allowed []netip.Prefix) []domain.Station {
	kept := make([]domain.Station, 0, len(stations))
	for _, station := range stations {
		addr, ok := station.Addr()
		if !ok {
			continue
		}
		if inAnyPrefix(addr, allowed) {
			kept = append(kept, station)
		}
	}
	return kept
}

func inAnyPrefix(addr netip.Addr, prefixes []netip.Prefix) bool {
	for _, prefix := range prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
