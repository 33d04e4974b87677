package httpx

import (
	"net"
	"strconv"
)

type Address string

// SplitHostPort returns the host and the port of the address,
// the port is 0 when it is absent or not a number.
func (a Address) SplitHostPort() (string, int) {
	host, port, err := net.SplitHostPort(string(a))
	if err != nil {
		return string(a), 0
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return host, 0
	}
	return host, p
}

// buildAddress joins the host of address with the port of the listener,
// e.g. host.com:8080 and a listener on :8888 makes host.com:8888.
// The zone, if any, is prepended to the host.
func buildAddress(address string, zone string, l Listener) string {
	addr, _, err := net.SplitHostPort(address)
	if err != nil {
		addr = address
	}
	if addr == "" {
		addr = "localhost"
	}
	addr = withZonePrefix(addr, zone)

	port := l.GetPort()
	if port > 0 && port != 80 && port != 443 {
		addr += ":" + strconv.Itoa(port)
	}
	return addr
}

func withZonePrefix(host, zone string) string {
	if zone == "" || host == "" {
		return host
	}
	return zone + "." + host
}
