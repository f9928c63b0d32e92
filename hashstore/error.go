package hashstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
)

var (
	ErrConnectivity = errors.New("hashstore connectivity error")
	ErrProtocol     = errors.New("hashstore protocol error")
	ErrDecode       = errors.New("hashstore decode error")
)

func ConnectivityError(err error, name string) error {
	return fmt.Errorf("%w %s: %w", ErrConnectivity, name, err)
}

func ProtocolError(err error, name string) error {
	return fmt.Errorf("%w %s: %w", ErrProtocol, name, err)
}

func DecodeError(err error, name string) error {
	return fmt.Errorf("%w %s: %w", ErrDecode, name, err)
}

// remoteErr classifies a failed remote operation. Transport level failures
// (unreachable, timed out, connection dropped) are connectivity errors,
// anything else the server said or sent is a protocol error. redis.Nil is the
// absence signal and must be handled by the caller before classification.
func remoteErr(err error, name string) error {
	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, io.EOF) {
		return ConnectivityError(err, name)
	}
	return ProtocolError(err, name)
}
