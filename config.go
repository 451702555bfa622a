package dgram

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	FamilyIPv4 = "ipv4"
	FamilyIPv6 = "ipv6"
)

const (
	kDefaultWriteSpinCount    = 16
	kDefaultRecvBufferMin     = 64
	kDefaultRecvBufferInitial = 2048
	kDefaultRecvBufferMax     = 65536
)

// Config holds the options a Channel reads. The zero value is not usable;
// start from NewConfig or LoadConfig.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	ListenPort int    `yaml:"listen_port"`
	Family     string `yaml:"family"`

	// WriteSpinCount is how many times a datagram is offered to the kernel
	// before write interest is armed.
	WriteSpinCount int `yaml:"write_spin_count"`
	// AutoRead keeps read interest armed. When false the consumer calls
	// Channel.Read for every batch it wants.
	AutoRead bool `yaml:"auto_read"`
	// ActiveOnRegistration makes IsActive also require reactor registration.
	ActiveOnRegistration bool `yaml:"active_on_registration"`

	RecvBufferMin     int `yaml:"recv_buffer_min"`
	RecvBufferInitial int `yaml:"recv_buffer_initial"`
	RecvBufferMax     int `yaml:"recv_buffer_max"`

	ReuseAddr    bool `yaml:"reuse_addr"`
	ReusePort    bool `yaml:"reuse_port"`
	Broadcast    bool `yaml:"broadcast"`
	SoRcvBuf     int  `yaml:"so_rcvbuf"`
	SoSndBuf     int  `yaml:"so_sndbuf"`
	TrafficClass int  `yaml:"traffic_class"`
}

func NewConfig(la string, lp int) Config {
	return Config{
		ListenAddr:           la,
		ListenPort:           lp,
		Family:               FamilyIPv4,
		WriteSpinCount:       kDefaultWriteSpinCount,
		AutoRead:             true,
		ActiveOnRegistration: true,
		RecvBufferMin:        kDefaultRecvBufferMin,
		RecvBufferInitial:    kDefaultRecvBufferInitial,
		RecvBufferMax:        kDefaultRecvBufferMax,
	}
}

// LoadConfig reads a YAML file on top of the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := NewConfig("0.0.0.0", 0)
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch {
	case c.Family != FamilyIPv4 && c.Family != FamilyIPv6:
		return fmt.Errorf("config: unknown family %q", c.Family)
	case c.ListenPort < 0 || c.ListenPort > 65535:
		return fmt.Errorf("config: listen_port %d out of range", c.ListenPort)
	case c.WriteSpinCount < 1:
		return fmt.Errorf("config: write_spin_count must be >= 1, got %d", c.WriteSpinCount)
	case c.RecvBufferMin < 1:
		return fmt.Errorf("config: recv_buffer_min must be positive, got %d", c.RecvBufferMin)
	case c.RecvBufferInitial < c.RecvBufferMin:
		return fmt.Errorf("config: recv_buffer_initial %d below recv_buffer_min %d", c.RecvBufferInitial, c.RecvBufferMin)
	case c.RecvBufferMax < c.RecvBufferInitial:
		return fmt.Errorf("config: recv_buffer_max %d below recv_buffer_initial %d", c.RecvBufferMax, c.RecvBufferInitial)
	case c.SoRcvBuf < 0 || c.SoSndBuf < 0:
		return fmt.Errorf("config: socket buffer sizes must not be negative")
	case c.TrafficClass < 0 || c.TrafficClass > 255:
		return fmt.Errorf("config: traffic_class %d out of range", c.TrafficClass)
	}
	return nil
}
