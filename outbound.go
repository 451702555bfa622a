package dgram

type pendingWrite struct {
	msg    Outbound
	future *Future
}

// outboundQueue is the channel's FIFO of messages waiting for the write
// engine. The head blocks everything behind it.
type outboundQueue struct {
	items []pendingWrite
	head  int
}

func (q *outboundQueue) Len() int {
	return len(q.items) - q.head
}

func (q *outboundQueue) Push(msg Outbound, f *Future) {
	q.items = append(q.items, pendingWrite{msg: msg, future: f})
}

func (q *outboundQueue) Peek() (pendingWrite, bool) {
	if q.Len() == 0 {
		return pendingWrite{}, false
	}
	return q.items[q.head], true
}

// Remove drops the head; the caller completes its future.
func (q *outboundQueue) Remove() pendingWrite {
	p := q.items[q.head]
	q.items[q.head] = pendingWrite{}
	q.head++
	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head > len(q.items)/2:
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return p
}

// failAll releases every queued payload and fails its future.
func (q *outboundQueue) failAll(err error) {
	for q.Len() > 0 {
		p := q.Remove()
		p.msg.release()
		p.future.setFailure(err)
	}
}
