package dgram

import (
	"errors"

	"github.com/bassosimone/errclass"
)

// flush writes queued datagrams in order until the queue is empty, the kernel
// stops taking them, or a send fails. A datagram the kernel does not take
// within WriteSpinCount attempts stays at the head and write interest is
// armed; the writable event calls flush again.
func (c *Channel) flush() {
	if c.inFlush {
		return
	}
	c.inFlush = true
	defer func() { c.inFlush = false }()

	for c.open {
		p, ok := c.outbound.Peek()
		if !ok {
			c.setWriteInterest(false)
			return
		}
		done, err := c.writeMessage(p.msg)
		if err != nil {
			c.outbound.Remove()
			p.msg.release()
			p.future.setFailure(err)
			if KindOf(err) == KindIO {
				// The socket may well be writable: no further edge will
				// come, so the next Flush has to run the queue itself.
				c.setWriteInterest(false)
				c.logger.WithField("errClass", errclass.New(err)).Warn("sendto: ", err)
				c.pipeline.ErrorCaught(c, err)
				return
			}
			continue
		}
		if !done {
			c.metrics.blocked()
			c.logger.Debug("send buffer full, ", c.outbound.Len(), " datagrams queued")
			c.setWriteInterest(true)
			return
		}
		c.outbound.Remove()
		p.msg.release()
		p.future.setSuccess()
	}
}

// writeMessage offers one datagram to the kernel up to WriteSpinCount times.
// It reports false without error when every attempt would block.
func (c *Channel) writeMessage(msg Outbound) (bool, error) {
	data := msg.payload.Bytes()
	if len(data) == 0 {
		return true, nil
	}
	to, ok := msg.Destination()
	if !ok {
		return false, opError("sendto", KindUnsupported, ErrNotAddressed)
	}
	for i := c.cfg.WriteSpinCount; i > 0; i-- {
		n, err := c.sock.SendTo(data, to)
		switch {
		case err == nil && n > 0:
			c.metrics.written(n)
			return true, nil
		case err == nil, errors.Is(err, ErrWouldBlock):
			continue
		default:
			c.metrics.ioError("sendto", err)
			return false, &OpError{Op: "sendto", Kind: KindIO, Addr: to, Err: err}
		}
	}
	return false, nil
}
