//go:build linux

package dgram

import (
	"fmt"
	"net"
	"strconv"

	"github.com/rocinan/dgram/poller"
)

var _ Reactor = (*poller.EventLoop)(nil)

// Server runs one Channel on its own event loop.
type Server struct {
	channel   *Channel
	eventLoop *poller.EventLoop
}

func (s *Server) Start(cfg *Config, p Pipeline, opts ...Option) (err error) {
	s.eventLoop, err = poller.Create()
	if err != nil {
		return err
	}
	s.channel, err = NewChannel(*cfg, p, opts...)
	if err != nil {
		s.eventLoop.Close()
		return fmt.Errorf("start udp channel: %w", err)
	}
	if err = s.channel.Bind(net.JoinHostPort(cfg.ListenAddr, strconv.Itoa(cfg.ListenPort))); err != nil {
		s.abort()
		return err
	}
	if err = s.channel.Register(s.eventLoop); err != nil {
		s.abort()
		return err
	}
	go s.eventLoop.Run()
	return nil
}

func (s *Server) abort() {
	CheckError("[server] close channel: ", s.channel.Close())
	CheckError("[server] close eventLoop: ", s.eventLoop.Close())
}

// Channel must only be used from pipeline callbacks or through Send and
// Execute once the server is started.
func (s *Server) Channel() *Channel {
	return s.channel
}

func (s *Server) Stop() {
	log.Info("stop server ...")
	err := s.eventLoop.Execute(func() {
		CheckError("[server] close channel: ", s.channel.Close())
	})
	if err != nil {
		// The loop is gone; nothing else touches the channel.
		CheckError("[server] close channel: ", s.channel.Close())
	}
	if err = s.eventLoop.Close(); err != nil {
		log.Warn(err)
	}
	log.Info("[eventLoop] poller exit.")
	log.Info("stop server done.")
}
