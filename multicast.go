package dgram

import (
	"net"
	"net/netip"
)

// Membership names a multicast group, optionally on an interface and
// restricted to a source.
type Membership struct {
	Group     netip.Addr
	Port      uint16
	Interface *net.Interface
	Source    netip.Addr
}

// Multicast and connect are not implemented by this channel. Every method
// below fails with KindUnsupported without touching the socket; the Future
// variants complete f with the same error, or a new future when f is nil.

func completeUnsupported(f *Future, err error) *Future {
	if f == nil {
		return failedFuture(err)
	}
	return f.setFailure(err)
}

func (c *Channel) JoinGroup(m Membership) error {
	return unsupported("join group")
}

func (c *Channel) JoinGroupFuture(m Membership, f *Future) *Future {
	return completeUnsupported(f, c.JoinGroup(m))
}

func (c *Channel) LeaveGroup(m Membership) error {
	return unsupported("leave group")
}

func (c *Channel) LeaveGroupFuture(m Membership, f *Future) *Future {
	return completeUnsupported(f, c.LeaveGroup(m))
}

// Block stops receiving m.Group traffic from source.
func (c *Channel) Block(m Membership, source netip.Addr) error {
	return unsupported("block")
}

func (c *Channel) BlockFuture(m Membership, source netip.Addr, f *Future) *Future {
	return completeUnsupported(f, c.Block(m, source))
}

func (c *Channel) Connect(remote netip.AddrPort) error {
	return unsupported("connect")
}

func (c *Channel) ConnectFuture(remote netip.AddrPort, f *Future) *Future {
	return completeUnsupported(f, c.Connect(remote))
}
