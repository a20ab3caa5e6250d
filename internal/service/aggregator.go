package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"presenced/internal/domain"
	"presenced/internal/repository"
)

// Aggregation is the outcome of resolving one cycle's stations
type Aggregation struct {
	Result domain.AggregationResult
	// Loggable holds one sighting per counted device whose level allows logging
	Loggable []domain.Sighting
	// Unassigned holds sightings of addresses with no registry entry
	Unassigned []domain.Sighting
}

// member is the winning record for one identity
type member struct {
	privacy domain.PrivacyLevel
	index   int
}

// Aggregate resolves stations against the registry and reduces them to a
// privacy-filtered summary.
//
// HideIdentity devices are dropped entirely. Every other registered device
// is counted once per station entry. Devices sharing an identity collapse
// into one member whose display name comes from the most revealing level;
// ties keep the first device seen. Member names stay in first-insertion
// order. A failed lookup skips that station and is logged.
func Aggregate(ctx context.Context, stations []domain.Station, lookup repository.DeviceLookup,
	now time.Time, anonymousName string, logger zerolog.Logger) Aggregation {
	var (
		agg     Aggregation
		members = make(map[string]*member)
	)

	for _, station := range stations {
		device, err := lookup.LookupDevice(ctx, station.HardwareAddress)
		if err != nil {
			logger.Warn().Err(err).Str("mac", station.HardwareAddress).Msg("registry lookup failed, skipping device")
			continue
		}

		sighting := domain.Sighting{
			HardwareAddress: station.HardwareAddress,
			IP:              station.IP,
			Timestamp:       now,
		}

		if device == nil {
			agg.Unassigned = append(agg.Unassigned, sighting)
			continue
		}

		if !device.Privacy.Counted() {
			continue
		}

		agg.Result.DeviceCount++

		name := device.Privacy.DisplayName(device.Identity, anonymousName)
		if existing, ok := members[device.Identity]; ok {
			if device.Privacy.MoreRevealingThan(existing.privacy) {
				existing.privacy = device.Privacy
				agg.Result.MemberNames[existing.index] = name
			}
		} else {
			members[device.Identity] = &member{privacy: device.Privacy, index: len(agg.Result.MemberNames)}
			agg.Result.MemberNames = append(agg.Result.MemberNames, name)
		}

		if device.Privacy.Loggable() {
			sighting.HardwareAddress = device.HardwareAddress
			agg.Loggable = append(agg.Loggable, sighting)
		}
	}

	if agg.Result.MemberNames == nil {
		agg.Result.MemberNames = []string{}
	}
	agg.Result.MemberCount = uint64(len(agg.Result.MemberNames))
	agg.Result.SpaceOccupied = agg.Result.DeviceCount > 0

	return agg
}
