package enet

import (
	"net"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"
)

// Address identifies one endpoint of a datagram. It is a plain alias for
// *net.UDPAddr rather than a wrapper type, since nothing in this package
// needs more than what net already provides.
type Address = *net.UDPAddr

// Socket is the Host's transport dependency. udpSocket is the only
// implementation in this package; the host tests run it over loopback UDP.
type Socket interface {
	ReadFrom(buf []byte) (n int, from Address, err error)
	WriteTo(data []byte, to Address) (int, error)
	SetReadDeadline(t time.Time) error
	LocalAddr() Address
	Close() error
}

// udpSocket wraps a *net.UDPConn. SO_RCVBUF and SO_SNDBUF are set through
// net.UDPConn's own setters; golang.org/x/net/ipv4 is used only to enable
// destination-address control messages when broadcast is requested.
// SO_BROADCAST itself is not set.
type udpSocket struct {
	conn *net.UDPConn
	pc   *ipv4.PacketConn
}

// NewUDPSocket binds a UDP socket at addr (host:port, or ":0" for an
// ephemeral port) and applies the given buffer sizes; broadcast enables
// destination-address control messages.
func NewUDPSocket(addr string, receiveBufferSize, sendBufferSize int, broadcast bool) (Socket, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "enet: resolve %q", addr)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "enet: listen %q", addr)
	}

	if receiveBufferSize > 0 {
		if err := conn.SetReadBuffer(receiveBufferSize); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "enet: set SO_RCVBUF")
		}
	}
	if sendBufferSize > 0 {
		if err := conn.SetWriteBuffer(sendBufferSize); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "enet: set SO_SNDBUF")
		}
	}

	pc := ipv4.NewPacketConn(conn)
	if broadcast {
		// SO_BROADCAST has no portable net.UDPConn setter; enabling
		// destination-address control messages through the ipv4 socket
		// option layer lets a broadcast listener tell which local address
		// a datagram arrived on. NewHost always passes broadcast=false.
		if err := pc.SetControlMessage(ipv4.FlagDst|ipv4.FlagInterface, true); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "enet: enable broadcast control messages")
		}
	}

	return &udpSocket{conn: conn, pc: pc}, nil
}

func (s *udpSocket) ReadFrom(buf []byte) (int, Address, error) {
	n, addr, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		return 0, nil, err
	}
	return n, addr, nil
}

func (s *udpSocket) WriteTo(data []byte, to Address) (int, error) {
	return s.conn.WriteToUDP(data, to)
}

func (s *udpSocket) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

func (s *udpSocket) LocalAddr() Address {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

func (s *udpSocket) Close() error {
	return s.conn.Close()
}

// resolveAddress parses a "host:port" string into an Address.
func resolveAddress(address string) (Address, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "enet: resolve %q", address)
	}
	return addr, nil
}
