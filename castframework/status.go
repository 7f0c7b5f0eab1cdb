package castframework

import (
	"errors"
	"io"
	"net"

	"go2tv.app/castbridge/castprotocol"
)

// StatusCode is the error code carried by session callbacks.
type StatusCode int

// Values match the Android CommonStatusCodes / CastStatusCodes.
const (
	StatusSuccess             StatusCode = 0
	StatusNetworkError        StatusCode = 7
	StatusInternalError       StatusCode = 8
	StatusInterrupted         StatusCode = 14
	StatusTimeout             StatusCode = 15
	StatusCanceled            StatusCode = 16
	StatusApplicationNotFound StatusCode = 2004
	StatusFailed              StatusCode = 2100
)

// StatusCodeFromError maps an error from the protocol layer to a StatusCode.
func StatusCodeFromError(err error) StatusCode {
	switch {
	case err == nil:
		return StatusSuccess
	case castprotocol.IsTimeoutError(err):
		return StatusTimeout
	case errors.Is(err, castprotocol.ErrNoTransport):
		return StatusApplicationNotFound
	case isNetworkError(err):
		return StatusNetworkError
	default:
		return StatusFailed
	}
}

func isNetworkError(err error) bool {
	var opErr *net.OpError
	var dnsErr *net.DNSError
	return errors.As(err, &opErr) ||
		errors.As(err, &dnsErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed)
}
