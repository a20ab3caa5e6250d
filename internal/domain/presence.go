package domain

import (
	"net/netip"
	"strconv"
	"strings"
	"time"
)

// Station is one client reported as associated by a station source
type Station struct {
	HardwareAddress string `json:"mac"`
	IP              string `json:"ip,omitempty"`
}

// Addr parses the station's IP; ok is false when it is missing or malformed
func (s Station) Addr() (netip.Addr, bool) {
	if s.IP == "" {
		return netip.Addr{}, false
	}
	addr, err := netip.ParseAddr(s.IP)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// Sighting records that a hardware address was associated at a point in time
type Sighting struct {
	HardwareAddress string    `json:"mac"`
	IP              string    `json:"ip"`
	Timestamp       time.Time `json:"timestamp"`
}

// UnassignedDevice is a recently seen hardware address with no registry entry
type UnassignedDevice struct {
	HardwareAddress string    `json:"mac"`
	IP              string    `json:"ip"`
	LastSeen        time.Time `json:"last_seen"`
}

// AggregationResult is the privacy-filtered presence summary of one cycle
type AggregationResult struct {
	SpaceOccupied bool     `json:"space_occupied"`
	DeviceCount   uint64   `json:"device_count"`
	MemberCount   uint64   `json:"member_count"`
	MemberNames   []string `json:"member_names"`
}

// Space status payloads
const (
	SpaceOpen   = "open"
	SpaceClosed = "closed"
)

// SpaceStatus returns the occupancy payload
func (r AggregationResult) SpaceStatus() string {
	if r.SpaceOccupied {
		return SpaceOpen
	}
	return SpaceClosed
}

// DeviceCountPayload returns the device count as decimal text
func (r AggregationResult) DeviceCountPayload() string {
	return strconv.FormatUint(r.DeviceCount, 10)
}

// MemberCountPayload returns the member count as decimal text
func (r AggregationResult) MemberCountPayload() string {
	return strconv.FormatUint(r.MemberCount, 10)
}

// MemberNamesPayload joins the member names in order
func (r AggregationResult) MemberNamesPayload() string {
	return strings.Join(r.MemberNames, ", ")
}
