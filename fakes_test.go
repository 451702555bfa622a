package dgram

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"testing"

	"github.com/rocinan/dgram/poller"
	"github.com/rocinan/dgram/pool"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var (
	testLocal = netip.MustParseAddrPort("127.0.0.1:0")
	testPeer  = netip.MustParseAddrPort("10.0.0.7:5353")
	testPeer2 = netip.MustParseAddrPort("10.0.0.8:5354")
)

var errFakeClosed = errors.New("fake: socket closed")

type fakeDatagram struct {
	data []byte
	addr netip.AddrPort
}

// fakeSocket records every call that would be a syscall.
type fakeSocket struct {
	fd       int
	local    netip.AddrPort
	inbound  []fakeDatagram
	recvErr  error
	sendFunc func(p []byte, to netip.AddrPort) (int, error)
	sent     []fakeDatagram
	pending  error
	bindErr  error
	closed   bool
	calls    []string
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{fd: 42}
}

func (s *fakeSocket) queue(from netip.AddrPort, payloads ...string) {
	for _, p := range payloads {
		s.inbound = append(s.inbound, fakeDatagram{data: []byte(p), addr: from})
	}
}

func (s *fakeSocket) count(call string) int {
	n := 0
	for _, c := range s.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (s *fakeSocket) Fd() int {
	return s.fd
}

func (s *fakeSocket) Bind(addr netip.AddrPort) error {
	s.calls = append(s.calls, "bind")
	if s.bindErr != nil {
		return s.bindErr
	}
	s.local = addr
	if addr.Port() == 0 {
		s.local = netip.AddrPortFrom(addr.Addr(), 40000)
	}
	return nil
}

func (s *fakeSocket) LocalAddr() (netip.AddrPort, error) {
	s.calls = append(s.calls, "getsockname")
	return s.local, nil
}

func (s *fakeSocket) SendTo(p []byte, to netip.AddrPort) (int, error) {
	s.calls = append(s.calls, "sendto")
	if s.closed {
		return 0, errFakeClosed
	}
	if s.sendFunc != nil {
		n, err := s.sendFunc(p, to)
		if err == nil && n > 0 {
			s.sent = append(s.sent, fakeDatagram{data: append([]byte(nil), p...), addr: to})
		}
		return n, err
	}
	s.sent = append(s.sent, fakeDatagram{data: append([]byte(nil), p...), addr: to})
	return len(p), nil
}

func (s *fakeSocket) RecvFrom(p []byte) (int, netip.AddrPort, error) {
	s.calls = append(s.calls, "recvfrom")
	if s.closed {
		return 0, netip.AddrPort{}, errFakeClosed
	}
	if len(s.inbound) == 0 {
		if err := s.recvErr; err != nil {
			s.recvErr = nil
			return 0, netip.AddrPort{}, err
		}
		return 0, netip.AddrPort{}, ErrWouldBlock
	}
	d := s.inbound[0]
	s.inbound = s.inbound[1:]
	return copy(p, d.data), d.addr, nil
}

func (s *fakeSocket) PendingError() error {
	s.calls = append(s.calls, "getsockopt")
	err := s.pending
	s.pending = nil
	return err
}

func (s *fakeSocket) Close() error {
	s.calls = append(s.calls, "close")
	s.closed = true
	return nil
}

// fakeReactor runs tasks inline and records interest changes.
type fakeReactor struct {
	interest   map[int32]int
	mods       []int
	unregister []int32
	tasks      int
	closed     bool
}

func newFakeReactor() *fakeReactor {
	return &fakeReactor{interest: make(map[int32]int)}
}

func (r *fakeReactor) Register(fd int32, mod int, obj poller.ISockNotify) error {
	r.interest[fd] = mod
	return nil
}

func (r *fakeReactor) Modify(fd int32, mod int) error {
	r.interest[fd] = mod
	r.mods = append(r.mods, mod)
	return nil
}

func (r *fakeReactor) UnRegister(fd int32) error {
	delete(r.interest, fd)
	r.unregister = append(r.unregister, fd)
	return nil
}

func (r *fakeReactor) Execute(task func()) error {
	if r.closed {
		return poller.ErrLoopClosed
	}
	r.tasks++
	task()
	return nil
}

// recorder is a Pipeline that copies and releases what it receives.
type recorder struct {
	events     []string
	senders    []netip.AddrPort
	errs       []error
	onDeliver  func(ch *Channel, d *Datagram, i int) error
	onComplete func(ch *Channel)
}

func (r *recorder) Deliver(ch *Channel, d *Datagram) error {
	i := len(r.senders)
	r.events = append(r.events, "deliver:"+string(d.Bytes()))
	r.senders = append(r.senders, d.Sender())
	if r.onDeliver != nil {
		return r.onDeliver(ch, d, i)
	}
	d.Release()
	return nil
}

func (r *recorder) ReadComplete(ch *Channel) {
	r.events = append(r.events, "complete")
	if r.onComplete != nil {
		r.onComplete(ch)
	}
}

func (r *recorder) ErrorCaught(ch *Channel, err error) {
	r.events = append(r.events, fmt.Sprintf("error:%s", KindOf(err)))
	r.errs = append(r.errs, err)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type testEnv struct {
	ch      *Channel
	sock    *fakeSocket
	reactor *fakeReactor
	rec     *recorder
	pool    *pool.Pool
}

// newTestEnv returns a bound, registered channel over fakes.
func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	cfg := NewConfig("127.0.0.1", 0)
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, cfg.Validate())
	env := &testEnv{
		sock:    newFakeSocket(),
		reactor: newFakeReactor(),
		rec:     &recorder{},
		pool:    pool.New(),
	}
	env.ch = newChannel(cfg, env.sock, env.rec, WithAllocator(env.pool), WithLogger(quietLogger()))
	require.NoError(t, env.ch.BindAddr(testLocal))
	require.NoError(t, env.ch.Register(env.reactor))
	return env
}

func (e *testEnv) fd() int32 {
	return int32(e.sock.fd)
}
