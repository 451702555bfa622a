//go:build linux

package poller

import (
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

var log = logrus.WithField("component", "poller")

// EventLoop is an edge-triggered epoll reactor. Handlers and tasks run on
// the goroutine calling Run.
type EventLoop struct {
	fd       int
	wakeFd   int
	isStop   atomic.Bool
	running  atomic.Bool
	waitDone chan struct{}

	mu      sync.RWMutex
	handler map[int32]ISockNotify

	taskMu      sync.Mutex
	tasks       []func()
	tasksClosed bool
}

func Create() (*EventLoop, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	// The wakeup eventfd stays level-triggered and is drained on every wakeup.
	if err := unix.EpollCtl(fd, unix.EPOLL_CTL_ADD, wfd, &unix.EpollEvent{
		Fd:     int32(wfd),
		Events: unix.EPOLLIN,
	}); err != nil {
		_ = unix.Close(wfd)
		_ = unix.Close(fd)
		return nil, err
	}
	return &EventLoop{
		fd:       fd,
		wakeFd:   wfd,
		handler:  make(map[int32]ISockNotify, kEpollSize),
		waitDone: make(chan struct{}),
	}, nil
}

func toEpoll(mod int) uint32 {
	events := uint32(unix.EPOLLET)
	if mod&PollIn != 0 {
		events |= unix.EPOLLIN
	}
	if mod&PollOut != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

func fromEpoll(events uint32) int {
	mod := PollNull
	if events&unix.EPOLLIN != 0 {
		mod |= PollIn
	}
	if events&unix.EPOLLOUT != 0 {
		mod |= PollOut
	}
	if events&unix.EPOLLERR != 0 {
		mod |= PollErr
	}
	if events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		mod |= PollHup
	}
	return mod
}

func (e *EventLoop) Register(fd int32, mod int, obj ISockNotify) error {
	if e.isStop.Load() {
		return ErrLoopClosed
	}
	e.mu.Lock()
	e.handler[fd] = obj
	e.mu.Unlock()
	if err := unix.EpollCtl(e.fd, unix.EPOLL_CTL_ADD, int(fd), &unix.EpollEvent{
		Fd:     fd,
		Events: toEpoll(mod),
	}); err != nil {
		e.mu.Lock()
		delete(e.handler, fd)
		e.mu.Unlock()
		return err
	}
	return nil
}

// Modify replaces the interest set of fd. EPOLL_CTL_MOD re-arms the edge, so
// a descriptor that is still ready is reported again.
func (e *EventLoop) Modify(fd int32, mod int) error {
	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_MOD, int(fd), &unix.EpollEvent{
		Events: toEpoll(mod),
		Fd:     fd,
	})
}

func (e *EventLoop) UnRegister(fd int32) error {
	e.mu.Lock()
	delete(e.handler, fd)
	e.mu.Unlock()
	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_DEL, int(fd), nil)
}

// Execute schedules task on the loop goroutine. It is safe to call from any
// goroutine. Once the loop has stopped taking tasks it returns ErrLoopClosed
// and task never runs.
func (e *EventLoop) Execute(task func()) error {
	e.taskMu.Lock()
	defer e.taskMu.Unlock()
	if e.tasksClosed {
		return ErrLoopClosed
	}
	e.tasks = append(e.tasks, task)
	// Under taskMu: closeTasks runs before the wakeup fd is closed.
	e.wakeup()
	return nil
}

func (e *EventLoop) wakeup() {
	var one [8]byte
	binary.LittleEndian.PutUint64(one[:], 1)
	if _, err := unix.Write(e.wakeFd, one[:]); err != nil && err != unix.EAGAIN {
		log.Warn("wakeup eventfd write: ", err)
	}
}

func (e *EventLoop) drainWakeup() {
	var buf [8]byte
	for {
		if _, err := unix.Read(e.wakeFd, buf[:]); err != nil {
			return
		}
	}
}

// closeTasks stops task intake and returns what is still queued.
func (e *EventLoop) closeTasks() []func() {
	e.taskMu.Lock()
	defer e.taskMu.Unlock()
	tasks := e.tasks
	e.tasks = nil
	e.tasksClosed = true
	return tasks
}

func (e *EventLoop) runTasks() {
	e.taskMu.Lock()
	tasks := e.tasks
	e.tasks = nil
	e.taskMu.Unlock()
	for _, task := range tasks {
		task()
	}
}

func (e *EventLoop) Run() {
	e.running.Store(true)
	defer close(e.waitDone)
	events := make([]unix.EpollEvent, kEpollSize)
	for !e.isStop.Load() {
		nfds, err := unix.EpollWait(e.fd, events, kTimeoutPrecision*1000)
		if err != nil {
			if err != unix.EINTR {
				log.Warn("EpollWait: ", err)
			}
			continue
		}
		for _, v := range events[:nfds] {
			if int(v.Fd) == e.wakeFd {
				e.drainWakeup()
				e.runTasks()
				continue
			}
			e.mu.RLock()
			obj, ok := e.handler[v.Fd]
			e.mu.RUnlock()
			if ok {
				obj.HandleEvent(int(v.Fd), fromEpoll(v.Events))
			}
		}
	}
	for _, task := range e.closeTasks() {
		task()
	}
}

func (e *EventLoop) Close() error {
	if !e.isStop.CompareAndSwap(false, true) {
		return nil
	}
	if !e.running.Load() {
		for _, task := range e.closeTasks() {
			task()
		}
		e.closeFds()
		return nil
	}
	e.wakeup()
	select {
	case <-e.waitDone:
		e.closeFds()
		return nil
	case <-time.After(time.Second * 15):
		e.isStop.Store(false)
		return errors.New("close eventloop error: timeout")
	}
}

func (e *EventLoop) closeFds() {
	_ = unix.Close(e.wakeFd)
	_ = unix.Close(e.fd)
}
