package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/gosnmp/gosnmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presenced/internal/domain"
)

var errSNMPTimeout = errors.New("request timeout (after 3 retries)")

type fakeWalker struct {
	pdus    []gosnmp.SnmpPDU
	err     error
	rootOid string
}

func (f *fakeWalker) BulkWalk(rootOid string, walkFn gosnmp.WalkFunc) error {
	f.rootOid = rootOid
	for _, pdu := range f.pdus {
		if err := walkFn(pdu); err != nil {
			return err
		}
	}
	return f.err
}

func newFakeSNMPSource(walker *fakeWalker, dialErr error) *SNMPSource {
	s := NewSNMPSource(SNMPConfig{Target: "192.0.2.1"}, zerolog.Nop())
	s.dial = func(context.Context) (snmpWalker, func(), error) {
		if dialErr != nil {
			return nil, nil, dialErr
		}
		return walker, func() {}, nil
	}
	return s
}

func TestStationFromPDU(t *testing.T) {
	tests := []struct {
		name   string
		pdu    gosnmp.SnmpPDU
		want   domain.Station
		wantOK bool
	}{
		{
			name: "arp entry",
			pdu: gosnmp.SnmpPDU{
				Name:  ".1.3.6.1.2.1.4.22.1.2.3.192.168.1.10",
				Type:  gosnmp.OctetString,
				Value: []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x01},
			},
			want:   domain.Station{HardwareAddress: "aa:bb:cc:dd:ee:01", IP: "192.168.1.10"},
			wantOK: true,
		},
		{
			name: "wrong type",
			pdu:  gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.4.22.1.2.3.192.168.1.10", Type: gosnmp.Integer, Value: 1},
			want: domain.Station{},
		},
		{
			name: "short address",
			pdu:  gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.4.22.1.2.3.192.168.1.10", Type: gosnmp.OctetString, Value: []byte{0xaa}},
			want: domain.Station{},
		},
		{
			name: "bad index",
			pdu:  gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.4.22.1.2.3.192.168.1.999", Type: gosnmp.OctetString, Value: []byte{1, 2, 3, 4, 5, 6}},
			want: domain.Station{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := stationFromPDU(tt.pdu)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSNMPSource_FetchStations(t *testing.T) {
	walker := &fakeWalker{pdus: []gosnmp.SnmpPDU{
		{Name: ".1.3.6.1.2.1.4.22.1.2.3.192.168.1.10", Type: gosnmp.OctetString, Value: []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x01}},
		{Name: ".1.3.6.1.2.1.4.22.1.2.3.192.168.1.11", Type: gosnmp.OctetString, Value: []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x02}},
		{Name: ".1.3.6.1.2.1.4.22.1.2.3.192.168.1.12", Type: gosnmp.NoSuchInstance},
	}}
	source := newFakeSNMPSource(walker, nil)

	stations, err := source.FetchStations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, oidIPNetToMediaPhysAddress, walker.rootOid)
	assert.Equal(t, []domain.Station{
		{HardwareAddress: "aa:bb:cc:dd:ee:01", IP: "192.168.1.10"},
		{HardwareAddress: "aa:bb:cc:dd:ee:02", IP: "192.168.1.11"},
	}, stations)
}

func TestSNMPSource_Errors(t *testing.T) {
	_, err := newFakeSNMPSource(nil, errSNMPTimeout).FetchStations(context.Background())
	assert.ErrorIs(t, err, ErrControllerUnreachable)

	_, err = newFakeSNMPSource(&fakeWalker{err: errSNMPTimeout}, nil).FetchStations(context.Background())
	assert.ErrorIs(t, err, ErrControllerUnreachable)
	assert.ErrorIs(t, err, errSNMPTimeout)
}

func TestNewSNMPSourceDefaults(t *testing.T) {
	s := NewSNMPSource(SNMPConfig{Target: "router"}, zerolog.Nop())
	assert.Equal(t, "snmp", s.Name())
	assert.Equal(t, uint16(161), s.config.Port)
	assert.Equal(t, "public", s.config.Community)
}
