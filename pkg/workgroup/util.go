package workgroup

import "net"

// hostOf strips the port off a host:port address, for the coarse
// IP-based attribution spec §4.6 describes ("the observed remote IP of
// the worker's inbound sessions").
func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
