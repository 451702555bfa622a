package dgram

import (
	"github.com/bassosimone/errclass"
	"github.com/rocinan/dgram/poller"
)

// interestSet mirrors what the channel asked the reactor to report.
type interestSet struct {
	read  bool
	write bool
}

func (s interestSet) mod() int {
	event := poller.PollErr
	if s.read {
		event |= poller.PollIn
	}
	if s.write {
		event |= poller.PollOut
	}
	return event
}

// updateInterest applies want to the reactor when it differs from the
// current set, or unconditionally when force is set. Modify re-arms the
// edge, which force relies on.
func (c *Channel) updateInterest(want interestSet, force bool) {
	if want == c.interest && !force {
		return
	}
	c.interest = want
	if !c.registered {
		return
	}
	if err := c.reactor.Modify(int32(c.sock.Fd()), want.mod()); err != nil {
		c.logger.WithField("errClass", errclass.New(err)).Warn("modify interest: ", err)
	}
}

func (c *Channel) setReadInterest(on bool) {
	want := c.interest
	want.read = on
	c.updateInterest(want, false)
}

func (c *Channel) setWriteInterest(on bool) {
	want := c.interest
	want.write = on
	c.updateInterest(want, false)
}

func (c *Channel) rearmRead() {
	want := c.interest
	want.read = true
	c.updateInterest(want, true)
}
