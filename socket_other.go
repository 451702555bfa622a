//go:build !linux

package dgram

import "errors"

// CreateUdpSocket is only implemented on linux.
func CreateUdpSocket(cfg *Config) (Socket, error) {
	return nil, opError("socket", KindUnsupported, errors.ErrUnsupported)
}
