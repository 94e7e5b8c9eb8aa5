package packet

import "net"

type stubConn string

func (c stubConn) ID() string { return string(c) }

func (c stubConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5701}
}
