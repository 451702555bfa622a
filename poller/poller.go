package poller

import "errors"

// ErrLoopClosed is returned when registering with, or scheduling on, a
// stopped loop.
var ErrLoopClosed = errors.New("poller: event loop closed")

const (
	kEpollSize        = 1024
	kTimeoutPrecision = 10
)

// Interest and readiness flags. Registrations are always edge-triggered.
const (
	PollNull = 0x00
	PollIn   = 0x01
	PollOut  = 0x04
	PollErr  = 0x08
	PollHup  = 0x10
)

// ISockNotify is implemented by everything registered with an EventLoop.
// HandleEvent runs on the loop goroutine.
type ISockNotify interface {
	HandleEvent(fd, event int)
}
