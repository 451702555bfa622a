package dgram

import (
	"net/netip"
	"runtime"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/google/uuid"
	"github.com/rocinan/dgram/poller"
	"github.com/rocinan/dgram/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUnboundChannel(t *testing.T, mutate func(*Config)) (*Channel, *fakeSocket) {
	t.Helper()
	cfg := NewConfig("127.0.0.1", 0)
	if mutate != nil {
		mutate(&cfg)
	}
	sock := newFakeSocket()
	return newChannel(cfg, sock, &recorder{}, WithLogger(quietLogger())), sock
}

func TestBindRejectsHostName(t *testing.T) {
	ch, sock := newUnboundChannel(t, nil)

	err := ch.Bind("localhost:53")

	require.Error(t, err)
	assert.Equal(t, KindInvalid, KindOf(err))
	assert.ErrorIs(t, err, ErrUnresolvedAddress)
	assert.Zero(t, sock.count("bind"))
	assert.False(t, ch.IsActive())
}

func TestBindMalformed(t *testing.T) {
	for _, local := range []string{"127.0.0.1", "127.0.0.1:port", "127.0.0.1:70000"} {
		ch, sock := newUnboundChannel(t, nil)
		err := ch.Bind(local)
		assert.Equal(t, KindInvalid, KindOf(err), local)
		assert.Zero(t, sock.count("bind"), local)
	}
}

func TestBindWildcard(t *testing.T) {
	tests := []struct {
		family string
		want   netip.Addr
	}{
		{FamilyIPv4, netip.IPv4Unspecified()},
		{FamilyIPv6, netip.IPv6Unspecified()},
	}
	for _, tt := range tests {
		t.Run(tt.family, func(t *testing.T) {
			ch, sock := newUnboundChannel(t, func(c *Config) { c.Family = tt.family })
			require.NoError(t, ch.Bind(":0"))
			assert.Equal(t, tt.want, ch.LocalAddr().Addr())
			assert.EqualValues(t, 40000, ch.LocalAddr().Port(), "local address is the one the kernel reports")
			assert.Equal(t, []string{"bind", "getsockname"}, sock.calls)
		})
	}
}

func TestBindTwice(t *testing.T) {
	ch, sock := newUnboundChannel(t, nil)
	require.NoError(t, ch.Bind("127.0.0.1:0"))
	local := ch.LocalAddr()

	err := ch.Bind("127.0.0.1:9000")

	assert.ErrorIs(t, err, ErrAlreadyBound)
	assert.Equal(t, local, ch.LocalAddr())
	assert.Equal(t, 1, sock.count("bind"))
}

func TestBindSocketError(t *testing.T) {
	ch, sock := newUnboundChannel(t, nil)
	sock.bindErr = syscall.EADDRINUSE

	err := ch.Bind("127.0.0.1:53")

	assert.Equal(t, KindIO, KindOf(err))
	assert.ErrorIs(t, err, syscall.EADDRINUSE)
	assert.False(t, ch.LocalAddr().IsValid())
	assert.False(t, ch.IsActive())
}

func TestBindAfterClose(t *testing.T) {
	ch, _ := newUnboundChannel(t, nil)
	require.NoError(t, ch.Close())
	assert.Equal(t, KindClosed, KindOf(ch.Bind("127.0.0.1:0")))
}

func TestIsActive(t *testing.T) {
	t.Run("on registration", func(t *testing.T) {
		ch, _ := newUnboundChannel(t, nil)
		assert.False(t, ch.IsActive())
		require.NoError(t, ch.Bind("127.0.0.1:0"))
		assert.False(t, ch.IsActive(), "bound but not registered")
		require.NoError(t, ch.Register(newFakeReactor()))
		assert.True(t, ch.IsActive())
		require.NoError(t, ch.Close())
		assert.False(t, ch.IsActive())
	})
	t.Run("on bind", func(t *testing.T) {
		ch, _ := newUnboundChannel(t, func(c *Config) { c.ActiveOnRegistration = false })
		require.NoError(t, ch.Bind("127.0.0.1:0"))
		assert.True(t, ch.IsActive())
	})
}

func TestChannelSurface(t *testing.T) {
	env := newTestEnv(t, nil)

	assert.Equal(t, Metadata{HasDisconnect: true, Connectionless: true}, env.ch.Metadata())
	assert.False(t, env.ch.IsConnected())
	_, ok := env.ch.RemoteAddr()
	assert.False(t, ok)
	assert.NotEqual(t, uuid.Nil, env.ch.ID())
	assert.EqualValues(t, 7, env.ch.ID().Version())
	assert.True(t, env.ch.IsRegistered())
	assert.Equal(t, poller.PollIn|poller.PollErr, env.reactor.interest[env.fd()])
}

func TestRegisterTwice(t *testing.T) {
	env := newTestEnv(t, nil)
	assert.Equal(t, KindInvalid, KindOf(env.ch.Register(env.reactor)))
}

func TestCloseIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)

	require.NoError(t, env.ch.Close())
	require.NoError(t, env.ch.Close())

	assert.False(t, env.ch.IsOpen())
	assert.False(t, env.ch.IsRegistered())
	assert.Equal(t, 1, env.sock.count("close"))
	assert.Equal(t, []int32{env.fd()}, env.reactor.unregister)
}

func TestPollErrReportsPendingError(t *testing.T) {
	env := newTestEnv(t, nil)
	env.sock.pending = syscall.ECONNREFUSED

	env.ch.HandleEvent(int(env.fd()), poller.PollErr)

	assert.Equal(t, []string{"error:io"}, env.rec.events)
	assert.ErrorIs(t, env.rec.errs[0], syscall.ECONNREFUSED)
	assert.True(t, env.ch.IsOpen())

	// Without a pending error nothing is reported.
	env.ch.HandleEvent(int(env.fd()), poller.PollErr)
	assert.Len(t, env.rec.events, 1)
}

func TestSendRunsOnReactor(t *testing.T) {
	env := newTestEnv(t, nil)

	f := env.ch.Send(addressed("hi"))

	assert.Equal(t, 1, env.reactor.tasks)
	require.True(t, f.IsDone())
	assert.NoError(t, f.Err())
	assert.Equal(t, []string{"hi"}, sentPayloads(env.sock))
}

func TestSendUnregistered(t *testing.T) {
	ch, _ := newUnboundChannel(t, nil)

	f := ch.Send(addressed("hi"))

	require.True(t, f.IsDone())
	assert.ErrorIs(t, f.Err(), ErrNotRegistered)
	assert.Equal(t, KindInvalid, KindOf(ch.Execute(func() {})))
}

func TestSetAutoRead(t *testing.T) {
	env := newTestEnv(t, nil)

	env.ch.SetAutoRead(false)
	assert.Equal(t, poller.PollErr, env.reactor.interest[env.fd()])

	env.ch.SetAutoRead(true)
	assert.Equal(t, poller.PollIn|poller.PollErr, env.reactor.interest[env.fd()])
}

func TestRegisterWithPendingRead(t *testing.T) {
	ch, _ := newUnboundChannel(t, func(c *Config) { c.AutoRead = false })
	require.NoError(t, ch.Bind("127.0.0.1:0"))
	ch.Read()
	r := newFakeReactor()

	require.NoError(t, ch.Register(r))

	assert.Equal(t, poller.PollIn|poller.PollErr, r.interest[int32(ch.sock.Fd())])
}

func TestNilPipelineDiscards(t *testing.T) {
	sock := newFakeSocket()
	bufs := pool.New()
	ch := newChannel(NewConfig("127.0.0.1", 0), sock, nil, WithAllocator(bufs), WithLogger(quietLogger()))
	require.NoError(t, ch.Bind("127.0.0.1:0"))
	require.NoError(t, ch.Register(newFakeReactor()))
	sock.queue(testPeer, "dropped")

	ch.HandleEvent(sock.fd, poller.PollIn)

	assert.Empty(t, sock.inbound)
	assert.EqualValues(t, 0, bufs.Outstanding())
}

func TestSendAfterReactorStopped(t *testing.T) {
	env := newTestEnv(t, nil)
	env.reactor.closed = true
	buf := env.pool.Allocate(4)
	buf.Advance(1)

	f := env.ch.Send(Addressed(buf, testPeer))

	require.True(t, f.IsDone())
	assert.Equal(t, KindClosed, KindOf(f.Err()))
	assert.ErrorIs(t, f.Err(), ErrClosed)
	assert.ErrorIs(t, f.Err(), poller.ErrLoopClosed)
	assert.EqualValues(t, 0, env.pool.Outstanding())
	assert.Zero(t, env.sock.count("sendto"))
}

// countingReactor only counts tasks, so it is safe to use from several
// goroutines.
type countingReactor struct {
	*fakeReactor
	scheduled atomic.Int32
}

func (r *countingReactor) Execute(task func()) error {
	r.scheduled.Add(1)
	return nil
}

func TestExecuteConcurrentWithRegister(t *testing.T) {
	ch, _ := newUnboundChannel(t, nil)
	require.NoError(t, ch.Bind("127.0.0.1:0"))
	r := &countingReactor{fakeReactor: newFakeReactor()}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ch.Execute(func() {}) != nil {
			runtime.Gosched()
		}
	}()
	require.NoError(t, ch.Register(r))
	<-done

	assert.EqualValues(t, 1, r.scheduled.Load())
}
