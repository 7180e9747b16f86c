//go:build !linux && !windows

package readbuffer

import "fmt"

// Get returns the receive buffer size.
func Get(_ PacketConn) (int, error) {
	return 0, fmt.Errorf("reading the receive buffer size is not supported on this operating system")
}
