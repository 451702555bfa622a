package dgram

import (
	"errors"
	"fmt"
	"net/netip"
)

// Kind classifies channel errors for handling purposes.
type Kind int

const (
	// KindUnknown is reported for errors not produced by this package.
	KindUnknown Kind = iota
	// KindUnsupported marks operations this channel never performs. Never retried.
	KindUnsupported
	// KindIO marks socket level failures during bind, send or receive.
	KindIO
	// KindPipeline marks failures raised while delivering to the pipeline.
	KindPipeline
	// KindInvalid marks bad arguments or a call in the wrong state.
	KindInvalid
	// KindClosed marks operations on, or messages discarded by, a closed channel.
	KindClosed
)

func (k Kind) String() string {
	switch k {
	case KindUnsupported:
		return "unsupported"
	case KindIO:
		return "io"
	case KindPipeline:
		return "pipeline"
	case KindInvalid:
		return "invalid"
	case KindClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	// ErrWouldBlock is returned by a Socket when the call would block. The
	// engines turn it into interest registration; it never reaches a pipeline.
	ErrWouldBlock = errors.New("dgram: operation would block")

	ErrClosed            = errors.New("dgram: channel closed")
	ErrUnresolvedAddress = errors.New("dgram: unresolved address")
	ErrAlreadyBound      = errors.New("dgram: channel already bound")
	ErrNotRegistered     = errors.New("dgram: channel not registered")
	ErrNotAddressed      = fmt.Errorf("dgram: send without destination on unconnected socket: %w", errors.ErrUnsupported)
)

// OpError is the error type returned and reported by Channel.
type OpError struct {
	Op   string
	Kind Kind
	Addr netip.AddrPort
	Err  error
}

func (e *OpError) Error() string {
	s := "dgram: " + e.Op
	if e.Addr.IsValid() {
		s += " " + e.Addr.String()
	}
	return s + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func opError(op string, kind Kind, err error) *OpError {
	return &OpError{Op: op, Kind: kind, Err: err}
}

func unsupported(op string) *OpError {
	return opError(op, KindUnsupported, errors.ErrUnsupported)
}

// KindOf returns the Kind of the first OpError in err's chain.
func KindOf(err error) Kind {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return KindUnknown
}

// IsUnsupported reports whether err denotes an operation this channel
// does not implement.
func IsUnsupported(err error) bool {
	return KindOf(err) == KindUnsupported || errors.Is(err, errors.ErrUnsupported)
}
