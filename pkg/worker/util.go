package worker

import "net"

// hostOf strips the port off a host:port address, the same coarse
// IP-based attribution pkg/workgroup uses for sessions arriving from the
// other direction.
func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
