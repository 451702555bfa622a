package dgram

// Pipeline consumes what a Channel produces. All methods run on the
// channel's loop goroutine.
//
// Deliver receives ownership of d's content when it returns nil. When it
// returns an error the channel releases the content, unless it was taken
// with Datagram.Claim.
type Pipeline interface {
	Deliver(ch *Channel, d *Datagram) error
	ReadComplete(ch *Channel)
	ErrorCaught(ch *Channel, err error)
}

// PipelineFuncs adapts functions to Pipeline. A nil DeliverFunc releases the
// datagram; other nil funcs do nothing.
type PipelineFuncs struct {
	DeliverFunc      func(ch *Channel, d *Datagram) error
	ReadCompleteFunc func(ch *Channel)
	ErrorCaughtFunc  func(ch *Channel, err error)
}

var _ Pipeline = &PipelineFuncs{}

func (p *PipelineFuncs) Deliver(ch *Channel, d *Datagram) error {
	if p.DeliverFunc == nil {
		d.Release()
		return nil
	}
	return p.DeliverFunc(ch, d)
}

func (p *PipelineFuncs) ReadComplete(ch *Channel) {
	if p.ReadCompleteFunc != nil {
		p.ReadCompleteFunc(ch)
	}
}

func (p *PipelineFuncs) ErrorCaught(ch *Channel, err error) {
	if p.ErrorCaughtFunc != nil {
		p.ErrorCaughtFunc(ch, err)
	}
}
