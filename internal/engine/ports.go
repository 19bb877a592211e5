package engine

import (
	"net"
	"strconv"
)

// PortAvailable reports whether the port can be bound on the host.
func PortAvailable(port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
