package adapter

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/rs/zerolog"

	"presenced/internal/domain"
)

// oidIPNetToMediaPhysAddress is the ARP table column holding hardware
// addresses, indexed by ifIndex.a.b.c.d
const oidIPNetToMediaPhysAddress = ".1.3.6.1.2.1.4.22.1.2"

// SNMPConfig holds router access for the ARP table source
type SNMPConfig struct {
	Target    string
	Port      uint16
	Community string
	Timeout   time.Duration
	Retries   int
}

// snmpWalker is the part of *gosnmp.GoSNMP the source uses
type snmpWalker interface {
	BulkWalk(rootOid string, walkFn gosnmp.WalkFunc) error
}

// SNMPSource reads a router's ARP table with SNMPv2c
type SNMPSource struct {
	config SNMPConfig
	logger zerolog.Logger
	dial   func(ctx context.Context) (snmpWalker, func(), error)
}

// NewSNMPSource creates the source; a new SNMP session is used per fetch
func NewSNMPSource(cfg SNMPConfig, logger zerolog.Logger) *SNMPSource {
	if cfg.Port == 0 {
		cfg.Port = 161
	}
	if cfg.Community == "" {
		cfg.Community = "public"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	s := &SNMPSource{config: cfg, logger: logger}
	s.dial = s.connect
	return s
}

// Name returns the source identifier
func (s *SNMPSource) Name() string {
	return "snmp"
}

func (s *SNMPSource) connect(ctx context.Context) (snmpWalker, func(), error) {
	client := &gosnmp.GoSNMP{
		Target:             s.config.Target,
		Port:               s.config.Port,
		Community:          s.config.Community,
		Version:            gosnmp.Version2c,
		Timeout:            s.config.Timeout,
		Retries:            s.config.Retries,
		MaxOids:            gosnmp.MaxOids,
		MaxRepetitions:     10,
		ExponentialTimeout: true,
		Context:            ctx,
	}

	if err := client.Connect(); err != nil {
		return nil, nil, err
	}

	return client, func() { _ = client.Conn.Close() }, nil
}

// FetchStations walks the ARP table
func (s *SNMPSource) FetchStations(ctx context.Context) ([]domain.Station, error) {
	walker, closeFn, err := s.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: snmp connect %s: %w", ErrControllerUnreachable, s.config.Target, err)
	}
	defer closeFn()

	var stations []domain.Station
	err = walker.BulkWalk(oidIPNetToMediaPhysAddress, func(pdu gosnmp.SnmpPDU) error {
		station, ok := stationFromPDU(pdu)
		if ok {
			stations = append(stations, station)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to walk ARP table: %w", ErrControllerUnreachable, err)
	}

	s.logger.Debug().Str("target", s.config.Target).Int("stations", len(stations)).Msg("walked ARP table")
	return stations, nil
}

// stationFromPDU converts one ipNetToMediaPhysAddress row
func stationFromPDU(pdu gosnmp.SnmpPDU) (domain.Station, bool) {
	if pdu.Type != gosnmp.OctetString {
		return domain.Station{}, false
	}

	raw, ok := pdu.Value.([]byte)
	if !ok || len(raw) != 6 {
		return domain.Station{}, false
	}

	ip, ok := ipFromIndex(pdu.Name)
	if !ok {
		return domain.Station{}, false
	}

	return domain.Station{
		HardwareAddress: net.HardwareAddr(raw).String(),
		IP:              ip.String(),
	}, true
}

// ipFromIndex extracts the IPv4 address from the last four sub-identifiers
func ipFromIndex(oid string) (netip.Addr, bool) {
	parts := strings.Split(strings.TrimPrefix(oid, "."), ".")
	if len(parts) < 4 {
		return netip.Addr{}, false
	}

	var octets [4]byte
	for i, part := range parts[len(parts)-4:] {
		v, err := strconv.ParseUint(part, 10, 8)
		if err != nil {
			return netip.Addr{}, false
		}
		octets[i] = byte(v)
	}
	return netip.AddrFrom4(octets), true
}
