// Package readbuffer allows to enlarge the kernel receive buffer of UDP sockets.
package readbuffer

import (
	"fmt"
	"net"
	"syscall"
)

// PacketConn is a packet connection whose receive buffer can be changed.
type PacketConn interface {
	net.PacketConn
	SyscallConn() (syscall.RawConn, error)
	SetReadBuffer(bytes int) error
}

// Set sets the receive buffer size and reads it back.
// The kernel silently caps the value, therefore a mismatch is reported as an error.
func Set(pc net.PacketConn, size int) error {
	rpc, ok := pc.(PacketConn)
	if !ok {
		return fmt.Errorf("connection doesn't support setting the read buffer")
	}

	err := rpc.SetReadBuffer(size)
	if err != nil {
		return err
	}

	v, err := Get(rpc)
	if err != nil {
		return err
	}

	if v < size {
		return fmt.Errorf("read buffer size is %d instead of %d, raise net.core.rmem_max", v, size)
	}

	return nil
}
