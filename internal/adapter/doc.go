// Package adapter implements the station sources that tell presenced which
// hardware addresses are currently on the network.
//
// # Sources
//
// UniFiSource logs into a UniFi controller and lists associated stations. It
// is the default source and the only one that sees wireless association
// directly.
//
// NmapSource runs a host discovery sweep (no port scan) over the allowed
// subnets and reports every host nmap could resolve to a hardware address.
//
// SSHNeighborSource runs `ip neigh show` on a router and parses the
// neighbour table.
//
// SNMPSource walks the ipNetToMediaPhysAddress column of a router's ARP table.
//
// # Filtering
//
// Every source is wrapped in a SubnetFilter so stations without an IP or
// outside the allowed subnets never reach aggregation.
//
// # Errors
//
// Sources report failures with the ErrController* sentinels. The cycle that
// observed the error is abandoned; the next tick starts fresh.
package adapter
