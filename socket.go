package dgram

import "net/netip"

// Socket is the native datagram socket the engines drive. Every call is
// non-blocking: a call that would block returns ErrWouldBlock. Calls after
// Close fail without touching a reused descriptor.
type Socket interface {
	Fd() int
	Bind(addr netip.AddrPort) error
	LocalAddr() (netip.AddrPort, error)
	// SendTo sends p as one datagram and returns the bytes written.
	SendTo(p []byte, to netip.AddrPort) (int, error)
	// RecvFrom receives one datagram into p.
	RecvFrom(p []byte) (int, netip.AddrPort, error)
	// PendingError returns and clears SO_ERROR.
	PendingError() error
	Close() error
}
