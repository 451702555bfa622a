package dgram

import "sync/atomic"

// Echo is a Pipeline that sends every datagram back to its sender. Replies
// queued during a drain pass are flushed together on read complete.
type Echo struct {
	echoed atomic.Int64
	failed atomic.Int64
}

var _ Pipeline = &Echo{}

func (e *Echo) Deliver(ch *Channel, d *Datagram) error {
	f := ch.Write(d.Reply())
	if f.IsDone() && f.Err() != nil {
		e.failed.Add(1)
		return nil
	}
	e.echoed.Add(1)
	return nil
}

func (e *Echo) ReadComplete(ch *Channel) {
	ch.Flush()
	if !ch.Config().AutoRead {
		ch.Read()
	}
}

func (e *Echo) ErrorCaught(ch *Channel, err error) {
	e.failed.Add(1)
	ch.logger.WithField("kind", KindOf(err)).Warn("[echo] ", err)
}

// Echoed is the number of datagrams queued back to their senders.
func (e *Echo) Echoed() int64 {
	return e.echoed.Load()
}

// Failed counts replies that could not be queued and reported errors.
func (e *Echo) Failed() int64 {
	return e.failed.Load()
}
