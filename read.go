package dgram

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/bassosimone/errclass"
	"github.com/rocinan/dgram/pool"
)

type recvStatus int

const (
	recvDelivered recvStatus = iota
	recvWouldBlock
	recvFailed
)

type recvResult struct {
	status recvStatus
	n      int
	from   netip.AddrPort
	err    error
}

// receive issues exactly one receive into buf.
func (c *Channel) receive(buf *pool.Buffer) recvResult {
	n, from, err := c.sock.RecvFrom(buf.Writable())
	switch {
	case err == nil:
		return recvResult{status: recvDelivered, n: n, from: from}
	case errors.Is(err, ErrWouldBlock):
		return recvResult{status: recvWouldBlock}
	default:
		return recvResult{status: recvFailed, err: err}
	}
}

// readReady is the drain pass run on every read readiness event. With an
// edge-triggered reactor no new event arrives for datagrams already queued,
// so it receives until the socket reports no data, a socket error occurs or
// the pipeline fails a delivery.
func (c *Channel) readReady() {
	var (
		fatal       error
		pipelineErr error
		delivered   int
	)
	for c.open {
		guess := c.sizing.Guess()
		buf := c.alloc.Allocate(guess)
		res := c.receive(buf)
		if res.status != recvDelivered {
			buf.Release()
			if res.status == recvFailed {
				fatal = res.err
			}
			break
		}
		buf.Advance(res.n)
		c.sizing.Record(res.n)
		c.metrics.read(res.n, c.sizing.Guess())
		c.readPending = false
		delivered++

		if err := c.deliver(newDatagram(buf, c.local, res.from)); err != nil {
			pipelineErr = err
			break
		}
	}
	c.metrics.drained(delivered)

	c.pipeline.ReadComplete(c)
	if fatal != nil {
		c.metrics.ioError("recvfrom", fatal)
		c.logger.WithField("errClass", errclass.New(fatal)).Warn("recvfrom: ", fatal)
		c.pipeline.ErrorCaught(c, opError("recvfrom", KindIO, fatal))
	}
	if pipelineErr != nil {
		c.metrics.pipelineError()
		c.logger.Warn("delivery failed, drain pass halted: ", pipelineErr)
		c.pipeline.ErrorCaught(c, pipelineErr)
		// Datagrams may still be queued in the kernel; a fresh edge brings
		// the next pass.
		if c.open {
			c.rearmRead()
		}
	}
	if c.open && !c.cfg.AutoRead && !c.readPending {
		c.setReadInterest(false)
	}
}

// deliver hands d to the pipeline. On failure the content is released
// unless the pipeline claimed it.
func (c *Channel) deliver(d *Datagram) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			if !d.claimed {
				d.content.Release()
			}
			err = &OpError{Op: "deliver", Kind: KindPipeline, Addr: d.sender, Err: err}
		}
	}()
	return c.pipeline.Deliver(c, d)
}
