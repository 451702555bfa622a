package dgram

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync/atomic"

	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
	"github.com/rocinan/dgram/poller"
	"github.com/rocinan/dgram/pool"
	"github.com/sirupsen/logrus"
)

// Reactor is the event loop a Channel registers with. *poller.EventLoop
// implements it.
type Reactor interface {
	Register(fd int32, mod int, obj poller.ISockNotify) error
	Modify(fd int32, mod int) error
	UnRegister(fd int32) error
	Execute(task func()) error
}

// Metadata describes the kind of transport a channel is.
type Metadata struct {
	// HasDisconnect is true: a datagram channel may be disconnected and
	// reused, unlike a stream.
	HasDisconnect bool
	// Connectionless is always true here; sends need a destination.
	Connectionless bool
}

type Option func(*Channel)

func WithAllocator(a pool.Allocator) Option {
	return func(c *Channel) { c.alloc = a }
}

func WithMetrics(m *Metrics) Option {
	return func(c *Channel) { c.metrics = m }
}

func WithLogger(l *logrus.Logger) Option {
	return func(c *Channel) { c.baseLogger = l }
}

// Channel is an unconnected UDP socket driven by an edge-triggered reactor.
//
// Except for Send and Execute, methods must be called from the reactor's
// loop goroutine once the channel is registered, which includes every
// Pipeline callback.
type Channel struct {
	id         uuid.UUID
	cfg        Config
	sock       Socket
	alloc      pool.Allocator
	pipeline   Pipeline
	reactor    Reactor
	executor   atomic.Pointer[Reactor]
	metrics    *Metrics
	baseLogger *logrus.Logger
	logger     *logrus.Entry

	local       netip.AddrPort
	open        bool
	active      bool
	registered  bool
	readPending bool
	inFlush     bool
	interest    interestSet

	sizing   *RecvSizer
	outbound outboundQueue
}

// NewChannel creates the socket described by cfg. A nil pipeline discards
// everything it would be handed.
func NewChannel(cfg Config, p Pipeline, opts ...Option) (*Channel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, opError("new channel", KindInvalid, err)
	}
	sock, err := CreateUdpSocket(&cfg)
	if err != nil {
		return nil, err
	}
	return newChannel(cfg, sock, p, opts...), nil
}

func newChannel(cfg Config, sock Socket, p Pipeline, opts ...Option) *Channel {
	if p == nil {
		p = &PipelineFuncs{}
	}
	c := &Channel{
		id:         runtimex.PanicOnError1(uuid.NewV7()),
		cfg:        cfg,
		sock:       sock,
		alloc:      pool.Default(),
		pipeline:   p,
		baseLogger: log,
		open:       true,
		sizing:     NewRecvSizer(cfg.RecvBufferMin, cfg.RecvBufferInitial, cfg.RecvBufferMax),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.baseLogger.WithFields(logrus.Fields{
		"component": "dgram",
		"category":  c.id.String()[:8],
	})
	return c
}

func (c *Channel) ID() uuid.UUID {
	return c.id
}

func (c *Channel) Config() Config {
	return c.cfg
}

func (c *Channel) Metadata() Metadata {
	return Metadata{HasDisconnect: true, Connectionless: true}
}

func (c *Channel) IsOpen() bool {
	return c.open
}

func (c *Channel) IsRegistered() bool {
	return c.registered
}

// IsActive reports an open, bound channel; with ActiveOnRegistration it must
// also be registered.
func (c *Channel) IsActive() bool {
	return c.open && c.active && (c.registered || !c.cfg.ActiveOnRegistration)
}

// IsConnected is always false: the socket is never connected.
func (c *Channel) IsConnected() bool {
	return false
}

// LocalAddr returns the address the kernel bound, invalid before Bind.
func (c *Channel) LocalAddr() netip.AddrPort {
	return c.local
}

// RemoteAddr returns no address: the channel has no peer.
func (c *Channel) RemoteAddr() (netip.AddrPort, bool) {
	return netip.AddrPort{}, false
}

// Bind binds to local, a "host:port" string whose host is an IP literal or
// empty for the wildcard address. Host names are rejected as unresolved.
func (c *Channel) Bind(local string) error {
	addr, err := resolveLocal(local, c.cfg.Family)
	if err != nil {
		return err
	}
	return c.BindAddr(addr)
}

func resolveLocal(local, family string) (netip.AddrPort, error) {
	host, portStr, err := net.SplitHostPort(local)
	if err != nil {
		return netip.AddrPort{}, opError("bind", KindInvalid, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return netip.AddrPort{}, opError("bind", KindInvalid, fmt.Errorf("port %q: %w", portStr, err))
	}
	if host == "" {
		if family == FamilyIPv6 {
			return netip.AddrPortFrom(netip.IPv6Unspecified(), uint16(port)), nil
		}
		return netip.AddrPortFrom(netip.IPv4Unspecified(), uint16(port)), nil
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.AddrPort{}, opError("bind", KindInvalid, fmt.Errorf("%w: %s", ErrUnresolvedAddress, host))
	}
	return netip.AddrPortFrom(addr, uint16(port)), nil
}

// BindAddr binds the socket and records the local address the kernel chose.
// The local address is set once.
func (c *Channel) BindAddr(addr netip.AddrPort) error {
	switch {
	case !c.open:
		return opError("bind", KindClosed, ErrClosed)
	case c.active:
		return opError("bind", KindInvalid, ErrAlreadyBound)
	case !addr.Addr().IsValid():
		return opError("bind", KindInvalid, ErrUnresolvedAddress)
	}
	if err := c.sock.Bind(addr); err != nil {
		c.metrics.ioError("bind", err)
		return &OpError{Op: "bind", Kind: KindIO, Addr: addr, Err: err}
	}
	local, err := c.sock.LocalAddr()
	if err != nil {
		c.metrics.ioError("getsockname", err)
		return opError("getsockname", KindIO, err)
	}
	c.local = local
	c.active = true
	c.logger.Info("bound to ", local)
	return nil
}

// Register adds the socket to r. Read interest is armed when AutoRead is on
// or a Read is pending.
func (c *Channel) Register(r Reactor) error {
	switch {
	case !c.open:
		return opError("register", KindClosed, ErrClosed)
	case c.registered:
		return opError("register", KindInvalid, errors.New("already registered"))
	}
	want := interestSet{read: c.cfg.AutoRead || c.readPending, write: c.interest.write}
	if err := r.Register(int32(c.sock.Fd()), want.mod(), c); err != nil {
		return opError("register", KindIO, err)
	}
	c.reactor = r
	c.executor.Store(&r)
	c.registered = true
	c.interest = want
	c.logger.Debug("registered, active: ", c.IsActive())
	return nil
}

func (c *Channel) Deregister() error {
	if !c.registered {
		return nil
	}
	c.registered = false
	if err := c.reactor.UnRegister(int32(c.sock.Fd())); err != nil {
		return opError("deregister", KindIO, err)
	}
	return nil
}

// Close closes the socket, fails every queued write and leaves the channel
// in its terminal state. Closing twice is a no-op.
func (c *Channel) Close() error {
	if !c.open {
		return nil
	}
	c.open = false
	c.active = false
	if c.registered {
		CheckError("[dgram] deregister on close: ", c.Deregister())
	}
	c.outbound.failAll(opError("write", KindClosed, ErrClosed))
	err := c.sock.Close()
	c.logger.Info("closed")
	if err != nil {
		return opError("close", KindIO, err)
	}
	return nil
}

// Execute runs task on the reactor's loop goroutine. It may be called from
// any goroutine, including before Register completes.
func (c *Channel) Execute(task func()) error {
	r := c.executor.Load()
	if r == nil {
		return opError("execute", KindInvalid, ErrNotRegistered)
	}
	if err := (*r).Execute(task); err != nil {
		return opError("execute", KindClosed, fmt.Errorf("%w: %w", ErrClosed, err))
	}
	return nil
}

// Read asks for the next datagrams. With AutoRead off it must be called
// again after each drain pass to keep receiving.
func (c *Channel) Read() {
	if !c.open {
		return
	}
	c.readPending = true
	c.setReadInterest(true)
}

func (c *Channel) SetAutoRead(on bool) {
	c.cfg.AutoRead = on
	switch {
	case on:
		c.Read()
	case !c.readPending:
		c.setReadInterest(false)
	}
}

// Write queues msg without flushing. msg is anything NewOutbound accepts;
// ownership of its buffer moves to the channel.
func (c *Channel) Write(msg any) *Future {
	f := NewFuture()
	c.write(msg, f)
	return f
}

func (c *Channel) write(msg any, f *Future) {
	out, err := NewOutbound(msg)
	if err != nil {
		f.setFailure(err)
		return
	}
	if !c.open {
		out.release()
		f.setFailure(opError("write", KindClosed, ErrClosed))
		return
	}
	c.outbound.Push(out, f)
}

// Flush runs the write engine, unless write interest is armed: then the
// writable event resumes it.
func (c *Channel) Flush() {
	if !c.open || c.interest.write {
		return
	}
	c.flush()
}

func (c *Channel) WriteAndFlush(msg any) *Future {
	f := c.Write(msg)
	c.Flush()
	return f
}

// Send is WriteAndFlush for callers outside the loop goroutine. Once the
// reactor stopped taking tasks the future fails with KindClosed.
func (c *Channel) Send(msg any) *Future {
	f := NewFuture()
	err := c.Execute(func() {
		c.write(msg, f)
		c.Flush()
	})
	if err != nil {
		if out, oerr := NewOutbound(msg); oerr == nil {
			out.release()
		}
		return failedFuture(err)
	}
	return f
}

// HandleEvent implements poller.ISockNotify.
func (c *Channel) HandleEvent(fd, event int) {
	if !c.open {
		return
	}
	if event&poller.PollErr != 0 {
		if err := c.sock.PendingError(); err != nil {
			c.metrics.ioError("so_error", err)
			c.logger.Warn("socket error: ", err)
			c.pipeline.ErrorCaught(c, opError("so_error", KindIO, err))
		}
	}
	if event&poller.PollOut != 0 && c.open {
		c.flush()
	}
	if event&(poller.PollIn|poller.PollHup) != 0 && c.open {
		c.readReady()
	}
}
