// Package netutil enumerates local bind addresses for the HL7 listener's
// "bind to every interface" mode (§3/§9: ListenIP "0.0.0.0" expands to
// every detected IPv4 address, loopback included, rather than a single
// wildcard bind, so operators relying on per-interface accept logging
// keep seeing it).
package netutil

import "net"

const wildcardIP = "0.0.0.0"

// ResolveBindAddresses returns the concrete IPv4 addresses to bind for a
// configured listen IP. A non-wildcard address passes through unchanged;
// "0.0.0.0" expands to every IPv4 address on every local interface,
// including loopback.
func ResolveBindAddresses(listenIP string) ([]string, error) {
	if listenIP != wildcardIP {
		return []string{listenIP}, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var addrs []string
	for _, iface := range ifaces {
		ifaceAddrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range ifaceAddrs {
			ip := ipFromAddr(a)
			if ip == nil || ip.To4() == nil {
				continue
			}
			addrs = append(addrs, ip.String())
		}
	}

	if len(addrs) == 0 {
		// No interfaces reported an IPv4 address (unusual, but sandboxed
		// test environments sometimes suppress interface enumeration):
		// fall back to the conventional wildcard bind.
		return []string{wildcardIP}, nil
	}
	return addrs, nil
}

func ipFromAddr(a net.Addr) net.IP {
	switch v := a.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	default:
		return nil
	}
}
