package dgram

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/rocinan/dgram/pool"
)

// ByteHolder is implemented by messages that carry a payload buffer.
type ByteHolder interface {
	Content() *pool.Buffer
}

// Envelope pairs a payload with the address it should be sent to. Content
// may be anything NewOutbound accepts except another Envelope.
type Envelope struct {
	Content   any
	Recipient netip.AddrPort
}

// Outbound is a message ready for the write engine: a payload, optionally
// with a destination.
type Outbound struct {
	payload   *pool.Buffer
	to        netip.AddrPort
	addressed bool
}

func Plain(payload *pool.Buffer) Outbound {
	return Outbound{payload: payload}
}

func Addressed(payload *pool.Buffer, to netip.AddrPort) Outbound {
	return Outbound{payload: payload, to: to, addressed: true}
}

func (o Outbound) Payload() *pool.Buffer {
	return o.payload
}

// Destination returns the recipient and whether the message has one.
func (o Outbound) Destination() (netip.AddrPort, bool) {
	return o.to, o.addressed
}

func (o Outbound) release() {
	if o.payload != nil {
		o.payload.Release()
	}
}

// NewOutbound resolves the shape of msg once. Ownership of a buffer inside
// msg moves to the returned Outbound; raw byte slices are wrapped without
// copying.
func NewOutbound(msg any) (Outbound, error) {
	switch m := msg.(type) {
	case Outbound:
		if m.payload == nil {
			break
		}
		return m, nil
	case Envelope:
		return addressedContent(m)
	case *Envelope:
		if m == nil {
			break
		}
		return addressedContent(*m)
	}
	payload, err := payloadOf(msg)
	if err != nil {
		return Outbound{}, err
	}
	return Plain(payload), nil
}

func addressedContent(e Envelope) (Outbound, error) {
	payload, err := payloadOf(e.Content)
	if err != nil {
		return Outbound{}, err
	}
	return Addressed(payload, e.Recipient), nil
}

func payloadOf(msg any) (*pool.Buffer, error) {
	switch m := msg.(type) {
	case []byte:
		return pool.Wrap(m), nil
	case *pool.Buffer:
		if m != nil {
			return m, nil
		}
	case ByteHolder:
		if b := m.Content(); b != nil {
			return b, nil
		}
	}
	return nil, opError("write", KindUnsupported,
		fmt.Errorf("unsupported message type %T: %w", msg, errors.ErrUnsupported))
}

// Datagram is one received message. Sender is the source address reported by
// the kernel, Recipient the channel's local address.
type Datagram struct {
	content   *pool.Buffer
	sender    netip.AddrPort
	recipient netip.AddrPort
	claimed   bool
}

func newDatagram(content *pool.Buffer, recipient, sender netip.AddrPort) *Datagram {
	return &Datagram{content: content, sender: sender, recipient: recipient}
}

func (d *Datagram) Content() *pool.Buffer {
	return d.content
}

func (d *Datagram) Bytes() []byte {
	return d.content.Bytes()
}

func (d *Datagram) Sender() netip.AddrPort {
	return d.sender
}

func (d *Datagram) Recipient() netip.AddrPort {
	return d.recipient
}

// Claim takes ownership of the content even if delivery then fails; the
// caller becomes responsible for releasing it.
func (d *Datagram) Claim() *pool.Buffer {
	d.claimed = true
	return d.content
}

// Release frees the content. Use it when the datagram is consumed in place.
func (d *Datagram) Release() {
	d.content.Release()
}

// Reply builds an envelope carrying the claimed content back to the sender.
func (d *Datagram) Reply() Envelope {
	return Envelope{Content: d.Claim(), Recipient: d.sender}
}
