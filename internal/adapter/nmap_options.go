package adapter

import "time"

// NmapOption is a functional option for configuring NmapSource
type NmapOption func(*NmapSource)

// WithTimeout bounds a whole sweep
func WithTimeout(d time.Duration) NmapOption {
	return func(n *NmapSource) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithPrivileged tells nmap it may use raw sockets, which it needs to
// read hardware addresses from ARP replies
func WithPrivileged(privileged bool) NmapOption {
	return func(n *NmapSource) {
		n.privileged = privileged
	}
}

// WithTargets sets or replaces the target list
func WithTargets(targets []string) NmapOption {
	return func(n *NmapSource) {
		n.targets = targets
	}
}
